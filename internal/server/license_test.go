package server

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseEndpointsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedLicense(t, 1)
	body := func(domain string) gin.H {
		return gin.H{"license_key": key, "product_slug": "seo-toolkit", "domain": domain}
	}

	w := env.do(t, http.MethodPost, "/api/v1/licenses/validate", "", body(""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	license := decode(t, w)["license"].(map[string]any)
	assert.Equal(t, "active", license["status"])
	assert.Equal(t, "SEO Toolkit", license["product"])
	assert.Equal(t, "Single site", license["package"])

	w = env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", body("https://www.Foo.com/"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])

	w = env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", body("foo.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["message"], "already activated")

	w = env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", body("bar.com"))
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "domain_limit_reached", licenseErrorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/licenses/check", "", body("foo.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	check := decode(t, w)
	assert.Equal(t, true, check["activated"])
	assert.Equal(t, true, check["license_valid"])
	assert.NotNil(t, check["license"])

	w = env.do(t, http.MethodPost, "/api/v1/licenses/deactivate", "", body("foo.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/licenses/deactivate", "", body("foo.com"))
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, "activation_not_found", licenseErrorCodeOf(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/licenses/check", "", body("foo.com"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	check = decode(t, w)
	assert.Equal(t, false, check["activated"])
	assert.NotContains(t, check, "license")
}

func TestLicenseEndpointsRejectMissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", gin.H{"license_key": "ABCD-EFGH"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "validation_error", errBody["code"])
	fields := errBody["fields"].(map[string]any)
	assert.Contains(t, fields, "product_slug")
	assert.Contains(t, fields, "domain")
	assert.NotContains(t, fields, "license_key")
}

func TestUnknownLicenseIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedLicense(t, 1)

	w := env.do(t, http.MethodPost, "/api/v1/licenses/validate", "", gin.H{
		"license_key": "NOPE-NOPE-NOPE", "product_slug": "seo-toolkit",
	})
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	assert.Equal(t, "license_not_found", licenseErrorCodeOf(t, w))
}

func TestSuspendedLicenseCannotActivate(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedLicense(t, 1)

	w := env.do(t, http.MethodPost, "/admin/v1/licenses/"+key+"/status", adminToken, gin.H{"status": "suspended"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", gin.H{
		"license_key": key, "product_slug": "seo-toolkit", "domain": "foo.com",
	})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "license_inactive", licenseErrorCodeOf(t, w))
}

func TestLicenseErrorCodeClassifiesDomainErrors(t *testing.T) {
	assert.Equal(t, "validation_error", licenseErrorCode(fieldErrors{"domain": "required"}))
	assert.Equal(t, "", licenseErrorCode(ErrForbidden))

	kind, code := classifyErrorForLog(ErrForbidden)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "forbidden", code)
}
