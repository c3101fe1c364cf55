package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/admin/v1/licenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/admin/v1/licenses", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "unauthorized", errBody["type"])
}

func TestAdminRolesAreEnforced(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedLicense(t, 2)

	w := env.do(t, http.MethodGet, "/admin/v1/licenses", supportToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/admin/v1/licenses", supportToken, gin.H{"product_slug": "seo-toolkit", "package_slug": "single"})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/admin/v1/licenses/"+key+"/status", supportToken, gin.H{"status": "suspended"})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/admin/v1/licenses/"+key, systemToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestAdminLicenseManagement(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedLicense(t, 2)

	w := env.do(t, http.MethodPost, "/api/v1/licenses/activate", "", gin.H{
		"license_key": key, "product_slug": "seo-toolkit", "domain": "foo.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/admin/v1/licenses/"+key+"/activations?active=true", supportToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	activations := decode(t, w)["data"].([]any)
	require.Len(t, activations, 1)
	assert.Equal(t, "foo.com", activations[0].(map[string]any)["domain"])

	w = env.do(t, http.MethodPost, "/admin/v1/licenses/"+key+"/deactivate", supportToken, gin.H{"domain": "foo.com"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/admin/v1/licenses/"+key+"/activations?active=true", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodGet, "/admin/v1/licenses/"+key+"/audit-logs", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodPost, "/admin/v1/licenses/"+key+"/status", adminToken, gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/admin/v1/licenses/MISSING-KEY-0000", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestAdminProductSlugConflict(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/admin/v1/products", adminToken, gin.H{"slug": "forms", "name": "Forms"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/admin/v1/products", adminToken, gin.H{"slug": "forms", "name": "Forms again"})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/admin/v1/products?active=maybe", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestSubscriptionWebhook(t *testing.T) {
	subs := &fakeSubscriptionService{}
	env := newTestEnv(t, func(p *ServerParams) { p.SubscriptionSvc = subs })

	post := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", bytes.NewBufferString(`{"id":"evt"}`))
		if signature != "" {
			req.Header.Set(headerSignature, signature)
		}
		w := httptest.NewRecorder()
		env.engine.ServeHTTP(w, req)
		return w
	}

	w := post("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post("abc123")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "abc123", subs.signature)
	assert.Equal(t, "evt_1", decode(t, w)["event_id"])

	w = env.do(t, http.MethodPost, "/admin/v1/subscription-events", systemToken, gin.H{"id": "evt"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, 1, subs.trusted)

	w = env.do(t, http.MethodPost, "/admin/v1/subscription-events", supportToken, gin.H{"id": "evt"})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestSubscriptionWebhookWithoutSecret(t *testing.T) {
	subs := &fakeSubscriptionService{err: subscriptionsyncdomain.ErrSecretNotConfigured}
	env := newTestEnv(t, func(p *ServerParams) { p.SubscriptionSvc = subs })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", bytes.NewBufferString(`{}`))
	req.Header.Set(headerSignature, "abc")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
