package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
	RoleSystem  = "system"
)

const (
	ObjectProduct      = "product"
	ObjectLicense      = "license"
	ObjectActivation   = "activation"
	ObjectAuditLog     = "audit_log"
	ObjectSubscription = "subscription"
)

const (
	ActionProductView   = "product.view"
	ActionProductCreate = "product.create"
	ActionProductUpdate = "product.update"

	ActionLicenseView   = "license.view"
	ActionLicenseCreate = "license.create"
	ActionLicenseUpdate = "license.update"

	ActionActivationView       = "activation.view"
	ActionActivationDeactivate = "activation.deactivate"

	ActionAuditLogView = "audit_log.view"

	ActionSubscriptionIngest = "subscription.ingest"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject string, role string, object string, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !knownRole(role) {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDecision(ctx, "authorization.denied", subject, role, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, "authorization.granted", subject, role, object, action)
	}
	return nil
}

// ensureGrouping keeps exactly one role link for subject, replacing a stale
// one when an operator's token was re-issued with a different role.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, auditAction string, subject string, role string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	actorID := subject
	_ = s.auditSvc.AuditLog(ctx, nil, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeAdmin),
		ActorID:    &actorID,
		Action:     auditAction,
		TargetType: "authorization",
		TargetID:   &targetID,
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"role":   role,
		},
	})
}

func knownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSupport, RoleSystem:
		return true
	default:
		return false
	}
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionLicenseUpdate, ActionActivationDeactivate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin manages everything.
		{"role:admin", ObjectProduct, "*"},
		{"role:admin", ObjectLicense, "*"},
		{"role:admin", ObjectActivation, "*"},
		{"role:admin", ObjectAuditLog, "*"},
		{"role:admin", ObjectSubscription, "*"},

		// Support reads and frees domains.
		{"role:support", ObjectProduct, ActionProductView},
		{"role:support", ObjectLicense, ActionLicenseView},
		{"role:support", ObjectActivation, ActionActivationView},
		{"role:support", ObjectActivation, ActionActivationDeactivate},
		{"role:support", ObjectAuditLog, ActionAuditLogView},

		// System tokens feed subscription events.
		{"role:system", ObjectSubscription, ActionSubscriptionIngest},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
