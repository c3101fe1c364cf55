package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/product/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListRequest{
		Name:    strings.TrimSpace(req.Name),
		Active:  req.Active,
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.ToLower(strings.TrimSpace(req.OrderBy)),
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	productSlug := normalizeSlug(req.Slug, name)
	if productSlug == "" {
		return nil, domain.ErrInvalidSlug
	}

	description := strings.TrimSpace(ptrToString(req.Description))
	var descriptionPtr *string
	if description != "" {
		descriptionPtr = &description
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Slug:        productSlug,
		Name:        name,
		Description: descriptionPtr,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) GetBySlug(ctx context.Context, productSlug string) (*domain.Response, error) {
	productSlug = strings.TrimSpace(productSlug)
	if productSlug == "" {
		return nil, domain.ErrInvalidSlug
	}

	item, err := s.repo.FindBySlug(ctx, s.db, productSlug)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Archive(ctx context.Context, id string) (*domain.Response, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	item.Active = false
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) CreatePackage(ctx context.Context, req domain.CreatePackageRequest) (*domain.PackageResponse, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	packageSlug := normalizeSlug(req.Slug, name)
	if packageSlug == "" {
		return nil, domain.ErrInvalidSlug
	}
	if req.DomainLimit != nil && *req.DomainLimit <= 0 {
		return nil, domain.ErrInvalidDomainLimit
	}

	product, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	pkg := &domain.Package{
		ID:          s.genID.Generate().Int64(),
		ProductID:   product.ID,
		Slug:        packageSlug,
		Name:        name,
		DomainLimit: req.DomainLimit,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreatePackage(ctx, s.db, pkg); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	resp := toPackageResponse(pkg)
	return &resp, nil
}

func (s *Service) ListPackages(ctx context.Context, productID string) ([]domain.PackageResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(productID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	items, err := s.repo.ListPackages(ctx, s.db, id.Int64())
	if err != nil {
		return nil, err
	}

	resp := make([]domain.PackageResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toPackageResponse(&items[i]))
	}
	return resp, nil
}

// ResolvePackage finds a package by product and package slug.
func (s *Service) ResolvePackage(ctx context.Context, productSlug, packageSlug string) (*domain.Product, *domain.Package, error) {
	product, err := s.repo.FindBySlug(ctx, s.db, strings.TrimSpace(productSlug))
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, domain.ErrNotFound
	}

	pkg, err := s.repo.FindPackageBySlug(ctx, s.db, product.ID, strings.TrimSpace(packageSlug))
	if err != nil {
		return nil, nil, err
	}
	if pkg == nil {
		return nil, nil, domain.ErrPackageNotFound
	}
	return product, pkg, nil
}

func normalizeSlug(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	return slug.Make(raw)
}

func toResponse(p *domain.Product) domain.Response {
	resp := domain.Response{
		ID:          snowflake.ID(p.ID).String(),
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}

func toPackageResponse(p *domain.Package) domain.PackageResponse {
	return domain.PackageResponse{
		ID:          snowflake.ID(p.ID).String(),
		ProductID:   snowflake.ID(p.ProductID).String(),
		Slug:        p.Slug,
		Name:        p.Name,
		DomainLimit: p.DomainLimit,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
	}
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
