package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/pkg/db/pagination"
)

type createLicenseRequest struct {
	LicenseKey     string         `json:"license_key"`
	ProductSlug    string         `json:"product_slug"`
	PackageSlug    string         `json:"package_slug"`
	UserID         *string        `json:"user_id"`
	SubscriptionID *string        `json:"subscription_id"`
	DomainLimit    *int           `json:"domain_limit"`
	Status         string         `json:"status"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) CreateLicense(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.licenseAdminSvc.Create(c.Request.Context(), licensedomain.CreateLicenseRequest{
		LicenseKey:     strings.TrimSpace(req.LicenseKey),
		ProductSlug:    strings.TrimSpace(req.ProductSlug),
		PackageSlug:    strings.TrimSpace(req.PackageSlug),
		UserID:         req.UserID,
		SubscriptionID: req.SubscriptionID,
		DomainLimit:    req.DomainLimit,
		Status:         strings.TrimSpace(req.Status),
		ExpiresAt:      req.ExpiresAt,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListLicenses(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var query struct {
		Product   string `form:"product"`
		Status    string `form:"status"`
		UserID    string `form:"user_id"`
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.licenseAdminSvc.List(c.Request.Context(), licensedomain.ListLicensesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ProductSlug: strings.TrimSpace(query.Product),
		Status:      strings.TrimSpace(query.Status),
		UserID:      strings.TrimSpace(query.UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Licenses, "page_info": resp.PageInfo})
}

func (s *Server) GetLicense(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	resp, err := s.licenseAdminSvc.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setLicenseStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetLicenseStatus(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req setLicenseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.licenseAdminSvc.SetStatus(c.Request.Context(), c.Param("key"), strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLicenseActivations(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.licenseAdminSvc.ListActivations(c.Request.Context(), c.Param("key"), active != nil && *active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type adminDeactivateRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) AdminDeactivateDomain(c *gin.Context) {
	if s.licenseAdminSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req adminDeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.licenseAdminSvc.DeactivateDomain(c.Request.Context(), c.Param("key"), strings.TrimSpace(req.Domain)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListLicenseAuditLogs(c *gin.Context) {
	if s.licenseAdminSvc == nil || s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	license, err := s.licenseAdminSvc.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size"`
		Action    string `form:"action"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:     strings.TrimSpace(query.Action),
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   license.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
