package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
)

type licenseRequest struct {
	LicenseKey  string `json:"license_key" form:"license_key"`
	ProductSlug string `json:"product_slug" form:"product_slug"`
	Domain      string `json:"domain" form:"domain"`
}

// bindLicenseRequest reads the request and rejects missing fields before any
// lookup happens.
func bindLicenseRequest(c *gin.Context, needDomain bool) (licensedomain.Request, error) {
	var body licenseRequest
	if err := c.ShouldBind(&body); err != nil {
		return licensedomain.Request{}, fieldErrors{"request": "The request body is invalid."}
	}

	req := licensedomain.Request{
		LicenseKey:  strings.TrimSpace(body.LicenseKey),
		ProductSlug: strings.TrimSpace(body.ProductSlug),
		Domain:      strings.TrimSpace(body.Domain),
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	}

	missing := fieldErrors{}
	if req.LicenseKey == "" {
		missing["license_key"] = "The license key field is required."
	}
	if req.ProductSlug == "" {
		missing["product_slug"] = "The product slug field is required."
	}
	if needDomain && req.Domain == "" {
		missing["domain"] = "The domain field is required."
	}
	if len(missing) > 0 {
		return licensedomain.Request{}, missing
	}
	return req, nil
}

func (s *Server) ValidateLicense(c *gin.Context) {
	req, err := bindLicenseRequest(c, false)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	res, err := s.licenseSvc.Validate(c.Request.Context(), req)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	c.Set(obscontext.GinKeyLicenseOutcome, "valid")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"license": res.License,
	})
}

func (s *Server) ActivateLicense(c *gin.Context) {
	req, err := bindLicenseRequest(c, true)
	if err != nil {
		abortLicenseError(c, err)
		return
	}
	c.Set(obscontext.GinKeyLicenseDomain, req.Domain)

	res, err := s.licenseSvc.Activate(c.Request.Context(), req)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == licensedomain.OutcomeCreated {
		status = http.StatusCreated
	}
	c.Set(obscontext.GinKeyLicenseOutcome, string(res.Outcome))
	c.JSON(status, gin.H{
		"success": true,
		"message": res.Message,
		"license": res.License,
	})
}

func (s *Server) DeactivateLicense(c *gin.Context) {
	req, err := bindLicenseRequest(c, true)
	if err != nil {
		abortLicenseError(c, err)
		return
	}
	c.Set(obscontext.GinKeyLicenseDomain, req.Domain)

	res, err := s.licenseSvc.Deactivate(c.Request.Context(), req)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	c.Set(obscontext.GinKeyLicenseOutcome, "deactivated")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": res.Message,
	})
}

func (s *Server) CheckLicense(c *gin.Context) {
	req, err := bindLicenseRequest(c, true)
	if err != nil {
		abortLicenseError(c, err)
		return
	}
	c.Set(obscontext.GinKeyLicenseDomain, req.Domain)

	res, err := s.licenseSvc.Check(c.Request.Context(), req)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	body := gin.H{
		"success":       true,
		"activated":     res.Activated,
		"license_valid": res.LicenseValid,
	}
	if res.License != nil {
		body["license"] = res.License
	}
	c.JSON(http.StatusOK, body)
}
