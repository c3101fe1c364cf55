package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/domainname"
	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/license/keygen"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/smallbiznis/licensor/pkg/db/option"
	"github.com/smallbiznis/licensor/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxKeyAttempts = 5

type newLicense struct {
	key            string
	productSlug    string
	packageSlug    string
	userID         *string
	subscriptionID *string
	domainLimit    *int
	status         domain.Status
	expiresAt      *time.Time
	metadata       map[string]any
	actorType      string
}

func (s *Service) Create(ctx context.Context, req domain.CreateLicenseRequest) (*domain.LicenseResponse, error) {
	status := domain.StatusActive
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		parsed, ok := domain.ParseStatus(raw)
		if !ok {
			return nil, domain.ErrInvalidStatus
		}
		status = parsed
	}
	if req.DomainLimit != nil && *req.DomainLimit <= 0 {
		return nil, domain.ErrInvalidDomainLimit
	}

	key := keygen.Canonical(req.LicenseKey)
	if key != "" && !keygen.Acceptable(key) {
		return nil, domain.ErrInvalidLicenseKey
	}

	var created *domain.LicenseDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.createLicense(ctx, tx, newLicense{
			key:            key,
			productSlug:    req.ProductSlug,
			packageSlug:    req.PackageSlug,
			userID:         normalizeOptional(req.UserID),
			subscriptionID: normalizeOptional(req.SubscriptionID),
			domainLimit:    req.DomainLimit,
			status:         status,
			expiresAt:      req.ExpiresAt,
			metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := toLicenseResponse(created, 0)
	return &resp, nil
}

// createLicense inserts a license under product/package slugs, generating a
// key when none was supplied. The domain limit falls back to the package
// template, then to the policy default.
func (s *Service) createLicense(ctx context.Context, tx *gorm.DB, in newLicense) (*domain.LicenseDetail, error) {
	product, err := s.products.FindBySlug(ctx, tx, strings.ToLower(strings.TrimSpace(in.productSlug)))
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, productdomain.ErrNotFound
	}
	pkg, err := s.products.FindPackageBySlug(ctx, tx, product.ID, strings.ToLower(strings.TrimSpace(in.packageSlug)))
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, productdomain.ErrPackageNotFound
	}

	limit := in.domainLimit
	if limit == nil && pkg.DomainLimit != nil {
		value := *pkg.DomainLimit
		limit = &value
	}
	if limit == nil {
		if def := s.policy.Get().DefaultDomainLimit; def > 0 {
			limit = &def
		}
	}

	key := in.key
	if key == "" {
		key, err = s.uniqueKey(ctx, tx)
		if err != nil {
			return nil, err
		}
	} else {
		exists, err := s.licenses.KeyExists(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrLicenseKeyTaken
		}
	}

	now := s.clock.Now()
	license := domain.License{
		ID:             s.genID.Generate().Int64(),
		LicenseKey:     key,
		UserID:         in.userID,
		ProductID:      product.ID,
		PackageID:      pkg.ID,
		SubscriptionID: in.subscriptionID,
		DomainLimit:    limit,
		Status:         in.status,
		ExpiresAt:      in.expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(in.metadata) > 0 {
		license.Metadata = datatypes.JSONMap(in.metadata)
	}
	if err := s.licenses.Create(ctx, tx, &license); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrLicenseKeyTaken
		}
		return nil, err
	}

	metadata := map[string]any{
		"license_key":  license.LicenseKey,
		"product_slug": product.Slug,
		"package_slug": pkg.Slug,
		"status":       string(license.Status),
	}
	if license.SubscriptionID != nil {
		metadata["subscription_id"] = *license.SubscriptionID
	}
	if err := s.audit.AuditLog(ctx, tx, auditdomain.Entry{
		ActorType:  in.actorType,
		Action:     auditdomain.ActionLicenseCreated,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   licenseTarget(&license),
		Metadata:   metadata,
	}); err != nil {
		return nil, err
	}

	s.log.Info("license created",
		zap.String("license_id", snowflake.ID(license.ID).String()),
		zap.String("product", product.Slug),
		zap.String("package", pkg.Slug),
	)

	return &domain.LicenseDetail{
		License:     license,
		ProductSlug: product.Slug,
		ProductName: product.Name,
		PackageSlug: pkg.Slug,
		PackageName: pkg.Name,
	}, nil
}

func (s *Service) uniqueKey(ctx context.Context, tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := keygen.Generate()
		if err != nil {
			return "", err
		}
		exists, err := s.licenses.KeyExists(ctx, tx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
		s.log.Warn("generated license key collided, retrying", zap.Int("attempt", attempt+1))
	}
	return "", domain.ErrKeyGeneration
}

func (s *Service) Get(ctx context.Context, key string) (*domain.LicenseResponse, error) {
	detail, err := s.findByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	used, err := s.activations.CountActive(ctx, s.db, detail.ID)
	if err != nil {
		return nil, err
	}
	resp := toLicenseResponse(detail, used)
	return &resp, nil
}

func (s *Service) findByKey(ctx context.Context, conn *gorm.DB, key string) (*domain.LicenseDetail, error) {
	key = keygen.Canonical(key)
	if key == "" {
		return nil, domain.ErrInvalidLicenseKey
	}
	detail, err := s.licenses.FindByKey(ctx, conn, key)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.NotFoundError()
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context, req domain.ListLicensesRequest) (domain.ListLicensesResponse, error) {
	filter := domain.ListFilter{
		UserID: strings.TrimSpace(req.UserID),
	}
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return domain.ListLicensesResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = &status
	}
	if productSlug := strings.ToLower(strings.TrimSpace(req.ProductSlug)); productSlug != "" {
		product, err := s.products.FindBySlug(ctx, s.db, productSlug)
		if err != nil {
			return domain.ListLicensesResponse{}, err
		}
		if product == nil {
			return domain.ListLicensesResponse{Licenses: []domain.LicenseResponse{}}, nil
		}
		filter.ProductID = &product.ID
	}

	items, err := s.licenses.List(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return domain.ListLicensesResponse{}, err
	}

	pageSize := option.PageSize(req.Pagination)
	items, pageInfo := pagination.Page(items, pageSize, func(item *domain.LicenseDetail) pagination.Position {
		return pagination.Position{ID: item.ID, CreatedAt: item.CreatedAt}
	})

	resp := domain.ListLicensesResponse{Licenses: make([]domain.LicenseResponse, 0, len(items))}
	for _, item := range items {
		used, err := s.activations.CountActive(ctx, s.db, item.ID)
		if err != nil {
			return domain.ListLicensesResponse{}, err
		}
		resp.Licenses = append(resp.Licenses, toLicenseResponse(item, used))
	}
	resp.PageInfo = pageInfo
	return resp, nil
}

func (s *Service) SetStatus(ctx context.Context, key string, raw string) (*domain.LicenseResponse, error) {
	status, ok := domain.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return nil, domain.ErrInvalidStatus
	}

	var detail *domain.LicenseDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		detail, err = s.findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		return s.transition(ctx, tx, detail, status, "")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, detail.LicenseKey)
}

// transition moves detail to status under its row lock and audits the change.
// Setting the current status again is a no-op.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, detail *domain.LicenseDetail, status domain.Status, actorType string) error {
	locked, err := s.licenses.LockByID(ctx, tx, detail.ID)
	if err != nil {
		return err
	}
	if locked == nil {
		return domain.NotFoundError()
	}
	detail.License = *locked

	from := locked.Status
	if from == status {
		return nil
	}
	if s.policy.Get().StrictStatusTransitions && from == domain.StatusCancelled {
		return domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	if err := s.licenses.SetStatus(ctx, tx, locked.ID, status, now); err != nil {
		return err
	}
	detail.Status = status
	detail.UpdatedAt = now

	action := auditdomain.ActionLicenseStatusChanged
	if status == domain.StatusExpired && actorType == string(auditdomain.ActorTypeSystem) {
		action = auditdomain.ActionLicenseExpired
	}
	return s.audit.AuditLog(ctx, tx, auditdomain.Entry{
		ActorType:  actorType,
		Action:     action,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   licenseTarget(&detail.License),
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(status),
		},
	})
}

func (s *Service) ListActivations(ctx context.Context, key string, activeOnly bool) ([]domain.ActivationResponse, error) {
	detail, err := s.findByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	items, err := s.activations.ListByLicense(ctx, s.db, detail.ID, activeOnly)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.ActivationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toActivationResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) DeactivateDomain(ctx context.Context, key string, rawDomain string) error {
	domainName := domainname.Normalize(rawDomain)
	if domainName == "" {
		return domain.ErrInvalidDomain
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detail, err := s.findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if _, err := s.licenses.LockByID(ctx, tx, detail.ID); err != nil {
			return err
		}
		return s.deactivateDomain(ctx, tx, &detail.License, domainName, map[string]any{"source": "admin"})
	})
}

func (s *Service) SyncSubscription(ctx context.Context, req domain.SubscriptionSyncRequest) (*domain.LicenseResponse, bool, error) {
	subscriptionID := strings.TrimSpace(req.SubscriptionID)
	if subscriptionID == "" {
		return nil, false, domain.ErrInvalidID
	}
	status := req.Status
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return nil, false, domain.ErrInvalidStatus
	}

	var (
		detail  *domain.LicenseDetail
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.licenses.FindBySubscriptionID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			detail, err = s.createLicense(ctx, tx, newLicense{
				productSlug:    req.ProductSlug,
				packageSlug:    req.PackageSlug,
				userID:         normalizeOptional(req.UserID),
				subscriptionID: &subscriptionID,
				status:         status,
				expiresAt:      req.ExpiresAt,
				actorType:      string(auditdomain.ActorTypeWebhook),
			})
			created = err == nil
			return err
		}

		detail, err = s.licenses.FindByID(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if detail == nil {
			return domain.NotFoundError()
		}
		if err := s.transition(ctx, tx, detail, status, string(auditdomain.ActorTypeWebhook)); err != nil {
			return err
		}
		return s.syncExpiry(ctx, tx, detail, req.ExpiresAt)
	})
	if err != nil {
		return nil, false, err
	}

	used, err := s.activations.CountActive(ctx, s.db, detail.ID)
	if err != nil {
		return nil, false, err
	}
	resp := toLicenseResponse(detail, used)
	return &resp, created, nil
}

func (s *Service) syncExpiry(ctx context.Context, tx *gorm.DB, detail *domain.LicenseDetail, expiresAt *time.Time) error {
	if expiresAt == nil || (detail.ExpiresAt != nil && detail.ExpiresAt.Equal(*expiresAt)) {
		return nil
	}
	previous := detail.ExpiresAt
	now := s.clock.Now()
	if err := s.licenses.SetExpiry(ctx, tx, detail.ID, expiresAt, now); err != nil {
		return err
	}
	detail.ExpiresAt = expiresAt
	detail.UpdatedAt = now

	metadata := map[string]any{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
	if previous != nil {
		metadata["previous_expires_at"] = previous.UTC().Format(time.RFC3339)
	}
	return s.audit.AuditLog(ctx, tx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeWebhook),
		Action:     auditdomain.ActionLicenseRenewed,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   licenseTarget(&detail.License),
		Metadata:   metadata,
	})
}

func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	now := s.clock.Now()
	cutoff := now.Add(-s.policy.Get().ExpiryGracePeriod)

	items, err := s.licenses.ListExpiredActive(ctx, s.db, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range items {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		id := items[i].ID
		changed := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			detail, err := s.licenses.FindByID(ctx, tx, id)
			if err != nil || detail == nil {
				return err
			}
			locked, err := s.licenses.LockByID(ctx, tx, id)
			if err != nil || locked == nil {
				return err
			}
			// Renewed or changed since the scan.
			if locked.Status != domain.StatusActive || locked.ExpiresAt == nil || locked.ExpiresAt.After(cutoff) {
				return nil
			}
			changed = true
			return s.transition(ctx, tx, detail, domain.StatusExpired, string(auditdomain.ActorTypeSystem))
		})
		if err != nil {
			return expired, err
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		s.log.Info("expired overdue licenses", zap.Int("count", expired))
	}
	return expired, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalString(*value)
}

func toLicenseResponse(detail *domain.LicenseDetail, used int64) domain.LicenseResponse {
	resp := domain.LicenseResponse{
		ID:              snowflake.ID(detail.ID).String(),
		LicenseKey:      detail.LicenseKey,
		UserID:          detail.UserID,
		SubscriptionID:  detail.SubscriptionID,
		Product:         detail.ProductSlug,
		Package:         detail.PackageSlug,
		DomainLimit:     detail.DomainLimit,
		ActiveDomains:   used,
		Status:          detail.Status,
		ExpiresAt:       detail.ExpiresAt,
		LastValidatedAt: detail.LastValidatedAt,
		CreatedAt:       detail.CreatedAt,
		UpdatedAt:       detail.UpdatedAt,
	}
	if len(detail.Metadata) > 0 {
		resp.Metadata = map[string]any(detail.Metadata)
	}
	return resp
}

func toActivationResponse(a *domain.Activation) domain.ActivationResponse {
	return domain.ActivationResponse{
		ID:            snowflake.ID(a.ID).String(),
		Domain:        a.Domain,
		Active:        a.IsActive(),
		IPAddress:     a.IPAddress,
		UserAgent:     a.UserAgent,
		ActivatedAt:   a.ActivatedAt,
		LastCheckedAt: a.LastCheckedAt,
		DeactivatedAt: a.DeactivatedAt,
	}
}
