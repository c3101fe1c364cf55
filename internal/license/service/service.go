package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/observability/metrics"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Licenses    domain.Repository
	Activations domain.ActivationRepository
	Products    productdomain.Repository
	Audit       auditdomain.Service
	Policy      *config.PolicyHolder
	Metrics     *metrics.Metrics `optional:"true"`
}

// Service implements both the client-facing validation flow and the
// administrative license operations over the same stores.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	licenses    domain.Repository
	activations domain.ActivationRepository
	products    productdomain.Repository
	audit       auditdomain.Service
	policy      *config.PolicyHolder
	metrics     *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("license.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		licenses:    p.Licenses,
		activations: p.Activations,
		products:    p.Products,
		audit:       p.Audit,
		policy:      p.Policy,
		metrics:     p.Metrics,
	}
}

func NewValidationService(s *Service) domain.Service { return s }

func NewAdminService(s *Service) domain.AdminService { return s }

func (s *Service) summary(ctx context.Context, conn *gorm.DB, detail *domain.LicenseDetail) (domain.Summary, error) {
	used, err := s.activations.CountActive(ctx, conn, detail.ID)
	if err != nil {
		return domain.Summary{}, err
	}
	return buildSummary(detail, used), nil
}

func buildSummary(detail *domain.LicenseDetail, used int64) domain.Summary {
	usage := domain.ActivationUsage{
		Limit: detail.DomainLimit,
		Used:  used,
	}
	if remaining, unlimited := detail.RemainingActivations(used); !unlimited {
		usage.Remaining = &remaining
	}
	return domain.Summary{
		Status:      detail.Status,
		ExpiresAt:   detail.ExpiresAt,
		Activations: usage,
		Product:     detail.ProductName,
		Package:     detail.PackageName,
	}
}

// errorCode maps err onto the metric outcome label.
func errorCode(err error) string {
	if err == nil {
		return "success"
	}
	for _, sentinel := range []error{
		domain.ErrLicenseNotFound,
		domain.ErrLicenseInactive,
		domain.ErrLicenseExpired,
		domain.ErrDomainLimitReached,
		domain.ErrActivationNotFound,
		domain.ErrInvalidLicenseKey,
		domain.ErrInvalidProductSlug,
		domain.ErrInvalidDomain,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "error"
}

func (s *Service) record(ctx context.Context, operation string, err error) {
	s.metrics.RecordLicenseOperation(ctx, operation, errorCode(err))
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func licenseTarget(l *domain.License) *string {
	id := snowflake.ID(l.ID).String()
	return &id
}
