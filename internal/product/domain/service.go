package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	GetBySlug(ctx context.Context, slug string) (*Response, error)
	Archive(ctx context.Context, id string) (*Response, error)

	CreatePackage(ctx context.Context, req CreatePackageRequest) (*PackageResponse, error)
	ListPackages(ctx context.Context, productID string) ([]PackageResponse, error)
	ResolvePackage(ctx context.Context, productSlug, packageSlug string) (*Product, *Package, error)
}

type ListRequest struct {
	Name    string
	Active  *bool
	SortBy  string
	OrderBy string
}

type CreateRequest struct {
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

type CreatePackageRequest struct {
	ProductID   string `json:"-"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	DomainLimit *int   `json:"domain_limit"`
}

type Response struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type PackageResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	DomainLimit *int      `json:"domain_limit"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidSlug        = errors.New("invalid_slug")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidDomainLimit = errors.New("invalid_domain_limit")
	ErrNotFound           = errors.New("not_found")
	ErrPackageNotFound    = errors.New("package_not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrSlugTaken          = errors.New("slug_taken")
)
