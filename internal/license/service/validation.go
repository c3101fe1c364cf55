package service

import (
	"context"
	"errors"
	"strings"

	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/domainname"
	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/license/keygen"
	"github.com/smallbiznis/licensor/internal/observability/logger"
	"github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errActivationRace aborts an activation whose insert lost to a concurrent
// insert of the same (license, domain) pair.
var errActivationRace = errors.New("activation_race")

type resolvedRequest struct {
	key         string
	productSlug string
	domain      string
	ip          string
	userAgent   string
}

func resolveRequest(req domain.Request, needDomain bool) (resolvedRequest, error) {
	out := resolvedRequest{
		key:         keygen.Canonical(req.LicenseKey),
		productSlug: strings.ToLower(strings.TrimSpace(req.ProductSlug)),
		ip:          strings.TrimSpace(req.IPAddress),
		userAgent:   strings.TrimSpace(req.UserAgent),
	}
	if out.key == "" {
		return out, domain.ErrInvalidLicenseKey
	}
	if out.productSlug == "" {
		return out, domain.ErrInvalidProductSlug
	}
	if needDomain {
		out.domain = domainname.Normalize(req.Domain)
		if out.domain == "" {
			return out, domain.ErrInvalidDomain
		}
	}
	return out, nil
}

func (s *Service) resolve(ctx context.Context, conn *gorm.DB, r resolvedRequest) (*domain.LicenseDetail, error) {
	detail, err := s.licenses.FindByKeyAndProduct(ctx, conn, r.key, r.productSlug)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.NotFoundError()
	}
	return detail, nil
}

// inactiveError reports a license that is past expires_at with the Expired
// label even while its stored status is still active.
func inactiveError(l *domain.License, expired bool) error {
	if expired && l.Status == domain.StatusActive {
		return domain.InactiveError(domain.StatusExpired)
	}
	return domain.InactiveError(l.Status)
}

func (s *Service) Validate(ctx context.Context, req domain.Request) (result *domain.ValidateResult, err error) {
	defer func() { s.record(ctx, "validate", err) }()

	r, err := resolveRequest(req, false)
	if err != nil {
		return nil, err
	}

	detail, err := s.resolve(ctx, s.db, r)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.licenses.TouchValidated(ctx, s.db, detail.ID, now); err != nil {
		return nil, err
	}
	detail.LastValidatedAt = &now

	summary, err := s.summary(ctx, s.db, detail)
	if err != nil {
		return nil, err
	}
	return &domain.ValidateResult{License: summary}, nil
}

func (s *Service) Activate(ctx context.Context, req domain.Request) (result *domain.ActivateResult, err error) {
	defer func() { s.record(ctx, "activate", err) }()

	r, err := resolveRequest(req, true)
	if err != nil {
		return nil, err
	}

	result, err = s.activate(ctx, r)
	if errors.Is(err, errActivationRace) {
		// The concurrent winner has committed; the retry sees its row.
		s.log.Debug("activation insert raced, retrying", zap.String("domain", r.domain))
		result, err = s.activate(ctx, r)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordActivation(ctx, string(result.Outcome))
	logger.WithLicense(s.log, r.key, r.domain).Info("license activation",
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

func (s *Service) activate(ctx context.Context, r resolvedRequest) (*domain.ActivateResult, error) {
	var result *domain.ActivateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detail, err := s.resolve(ctx, tx, r)
		if err != nil {
			return err
		}
		locked, err := s.licenses.LockByID(ctx, tx, detail.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.NotFoundError()
		}
		detail.License = *locked

		now := s.clock.Now()
		if !detail.IsActive(now) {
			return inactiveError(&detail.License, detail.IsExpired(now))
		}

		existing, err := s.activations.FindByLicenseAndDomain(ctx, tx, detail.ID, r.domain)
		if err != nil {
			return err
		}

		var (
			outcome    domain.ActivationOutcome
			message    string
			activation domain.Activation
		)
		lookup := domain.LookupFrom(existing)
		switch lookup.Kind {
		case domain.LookupActiveExisting:
			activation = *lookup.Activation
			if err := s.activations.TouchChecked(ctx, tx, activation.ID, now); err != nil {
				return err
			}
			activation.LastCheckedAt = &now
			outcome = domain.OutcomeAlreadyActive
			message = "Domain is already activated for this license."

		case domain.LookupDeactivatedExisting:
			if !s.policy.Get().ReactivationBypassesLimit {
				if err := s.ensureCapacity(ctx, tx, &detail.License); err != nil {
					return err
				}
			}
			activation = *lookup.Activation
			if err := s.activations.Reactivate(ctx, tx, activation.ID, now); err != nil {
				return err
			}
			activation.DeactivatedAt = nil
			activation.LastCheckedAt = &now
			activation.UpdatedAt = now
			outcome = domain.OutcomeReactivated
			message = "Domain reactivated successfully."

			if err := s.auditActivation(ctx, tx, auditdomain.ActionDomainReactivated, &detail.License, &activation); err != nil {
				return err
			}

		default:
			if err := s.ensureCapacity(ctx, tx, &detail.License); err != nil {
				return err
			}
			activation = domain.Activation{
				ID:          s.genID.Generate().Int64(),
				LicenseID:   detail.ID,
				Domain:      r.domain,
				IPAddress:   optionalString(r.ip),
				UserAgent:   optionalString(r.userAgent),
				ActivatedAt: now,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.activations.Create(ctx, tx, &activation); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return errActivationRace
				}
				return err
			}
			outcome = domain.OutcomeCreated
			message = "Domain activated successfully."

			if err := s.auditActivation(ctx, tx, auditdomain.ActionDomainActivated, &detail.License, &activation); err != nil {
				return err
			}
		}

		if err := s.licenses.TouchValidated(ctx, tx, detail.ID, now); err != nil {
			return err
		}
		detail.LastValidatedAt = &now

		summary, err := s.summary(ctx, tx, detail)
		if err != nil {
			return err
		}
		result = &domain.ActivateResult{
			Outcome:    outcome,
			Message:    message,
			License:    summary,
			Activation: activation,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensureCapacity fails with domain_limit_reached when another active domain
// would exceed the license limit. Callers hold the license row lock.
func (s *Service) ensureCapacity(ctx context.Context, tx *gorm.DB, license *domain.License) error {
	if license.DomainLimit == nil {
		return nil
	}
	count, err := s.activations.CountActive(ctx, tx, license.ID)
	if err != nil {
		return err
	}
	if remaining, _ := license.RemainingActivations(count); remaining <= 0 {
		return domain.DomainLimitError(*license.DomainLimit)
	}
	return nil
}

func (s *Service) Deactivate(ctx context.Context, req domain.Request) (result *domain.DeactivateResult, err error) {
	defer func() { s.record(ctx, "deactivate", err) }()

	r, err := resolveRequest(req, true)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detail, err := s.resolve(ctx, tx, r)
		if err != nil {
			return err
		}
		if _, err := s.licenses.LockByID(ctx, tx, detail.ID); err != nil {
			return err
		}
		return s.deactivateDomain(ctx, tx, &detail.License, r.domain, map[string]any{
			"product_slug": r.productSlug,
			"ip_address":   r.ip,
			"user_agent":   r.userAgent,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.WithLicense(s.log, r.key, r.domain).Info("license domain deactivated")
	return &domain.DeactivateResult{Message: "Domain deactivated successfully."}, nil
}

// deactivateDomain closes the active activation of domainName. Only an active
// row qualifies, so a second deactivation reports activation_not_found.
func (s *Service) deactivateDomain(ctx context.Context, tx *gorm.DB, license *domain.License, domainName string, metadata map[string]any) error {
	activation, err := s.activations.FindByLicenseAndDomain(ctx, tx, license.ID, domainName)
	if err != nil {
		return err
	}
	if !activation.IsActive() {
		return domain.ActivationNotFoundError()
	}

	now := s.clock.Now()
	if err := s.activations.Deactivate(ctx, tx, activation.ID, now); err != nil {
		return err
	}
	activation.DeactivatedAt = &now

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["domain"] = domainName
	metadata["activation_id"] = activation.ID
	return s.audit.AuditLog(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionDomainDeactivated,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   licenseTarget(license),
		Metadata:   metadata,
	})
}

func (s *Service) Check(ctx context.Context, req domain.Request) (result *domain.CheckResult, err error) {
	defer func() { s.record(ctx, "check", err) }()

	r, err := resolveRequest(req, true)
	if err != nil {
		return nil, err
	}

	detail, err := s.resolve(ctx, s.db, r)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	valid := detail.IsActive(now)

	activation, err := s.activations.FindByLicenseAndDomain(ctx, s.db, detail.ID, r.domain)
	if err != nil {
		return nil, err
	}
	if !activation.IsActive() {
		return &domain.CheckResult{Activated: false, LicenseValid: valid}, nil
	}

	if err := s.activations.TouchChecked(ctx, s.db, activation.ID, now); err != nil {
		return nil, err
	}
	if err := s.licenses.TouchValidated(ctx, s.db, detail.ID, now); err != nil {
		return nil, err
	}
	detail.LastValidatedAt = &now

	summary, err := s.summary(ctx, s.db, detail)
	if err != nil {
		return nil, err
	}
	return &domain.CheckResult{
		Activated:    true,
		LicenseValid: valid,
		License:      &summary,
	}, nil
}

// Guard runs the checks in order: known key, active status, not expired,
// domain currently activated.
func (s *Service) Guard(ctx context.Context, req domain.Request) (result *domain.GuardResult, err error) {
	defer func() { s.metrics.RecordGuardDecision(ctx, errorCode(err)) }()

	r, err := resolveRequest(req, true)
	if err != nil {
		return nil, err
	}

	detail, err := s.resolve(ctx, s.db, r)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if detail.Status != domain.StatusActive {
		return nil, domain.InactiveError(detail.Status)
	}
	if detail.IsExpired(now) {
		return nil, domain.ExpiredError()
	}

	activation, err := s.activations.FindByLicenseAndDomain(ctx, s.db, detail.ID, r.domain)
	if err != nil {
		return nil, err
	}
	if !activation.IsActive() {
		return nil, domain.ActivationNotFoundError()
	}

	return &domain.GuardResult{
		License:    *detail,
		Activation: *activation,
		Domain:     r.domain,
	}, nil
}

func (s *Service) auditActivation(ctx context.Context, tx *gorm.DB, action string, license *domain.License, activation *domain.Activation) error {
	metadata := map[string]any{
		"domain":        activation.Domain,
		"activation_id": activation.ID,
	}
	if activation.IPAddress != nil {
		metadata["ip_address"] = *activation.IPAddress
	}
	if activation.UserAgent != nil {
		metadata["user_agent"] = *activation.UserAgent
	}
	return s.audit.AuditLog(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   licenseTarget(license),
		Metadata:   metadata,
	})
}
