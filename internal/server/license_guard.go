package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
)

const (
	headerLicenseKey  = "X-License-Key"
	headerProductSlug = "X-Product-Slug"
	headerDomain      = "X-Domain"

	contextKeyLicenseGuard = "license_guard"
)

// LicenseGuard admits only requests carrying a license key that is active,
// unexpired and activated on the stated domain.
func (s *Server) LicenseGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := licensedomain.Request{
			LicenseKey:  guardParam(c, headerLicenseKey, "license_key"),
			ProductSlug: guardParam(c, headerProductSlug, "product_slug"),
			Domain:      guardParam(c, headerDomain, "domain"),
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
		if req.Domain == "" {
			missing["domain"] = "The domain field is required."
		}
		if len(missing) > 0 {
			abortLicenseError(c, missing)
			return
		}

		res, err := s.licenseSvc.Guard(c.Request.Context(), req)
		if err != nil {
			abortLicenseError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeClient, res.Domain)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyLicenseGuard, res)
		c.Set(obscontext.GinKeyLicenseDomain, res.Domain)
		c.Next()
	}
}

func guardFromContext(c *gin.Context) (*licensedomain.GuardResult, bool) {
	value, ok := c.Get(contextKeyLicenseGuard)
	if !ok {
		return nil, false
	}
	res, ok := value.(*licensedomain.GuardResult)
	return res, ok && res != nil
}

// guardParam prefers the header, then a form field, then the query string.
func guardParam(c *gin.Context, header, field string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.PostForm(field)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query(field))
}
