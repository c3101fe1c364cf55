package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	auditrepository "github.com/smallbiznis/licensor/internal/audit/repository"
	auditservice "github.com/smallbiznis/licensor/internal/audit/service"
	"github.com/smallbiznis/licensor/internal/authorization"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	licenserepository "github.com/smallbiznis/licensor/internal/license/repository"
	licenseservice "github.com/smallbiznis/licensor/internal/license/service"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	productrepository "github.com/smallbiznis/licensor/internal/product/repository"
	productservice "github.com/smallbiznis/licensor/internal/product/service"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminToken   = "tok-admin"
	supportToken = "tok-support"
	systemToken  = "tok-system"
)

type testEnv struct {
	server *Server
	engine *gin.Engine
	clock  *clock.FakeClock
}

type envOption func(*ServerParams)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := db.NewTest(t,
		&productdomain.Product{},
		&productdomain.Package{},
		&licensedomain.License{},
		&licensedomain.Activation{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultLicensePolicy())
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	products := productrepository.Provide()
	productSvc := productservice.New(productservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: products,
	})
	licenses := licenseservice.New(licenseservice.Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Licenses:    licenserepository.ProvideLicenses(),
		Activations: licenserepository.ProvideActivations(),
		Products:    products,
		Audit:       audit,
		Policy:      policy,
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: conn, Log: log, Enforcer: enforcer})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	params := ServerParams{
		Gin:   engine,
		Log:   log,
		GenID: node,
		Clock: clk,
		Cfg: config.Config{
			Admin: config.AdminConfig{Tokens: []config.AdminToken{
				{Name: "ops", Role: authorization.RoleAdmin, Token: adminToken},
				{Name: "helpdesk", Role: authorization.RoleSupport, Token: supportToken},
				{Name: "billing", Role: authorization.RoleSystem, Token: systemToken},
			}},
		},
		Policy:          policy,
		LicenseSvc:      licenses,
		LicenseAdminSvc: licenses,
		ProductSvc:      productSvc,
		AuditSvc:        audit,
		AuthzSvc:        authz,
	}
	for _, opt := range opts {
		opt(&params)
	}

	srv := NewServer(params)
	srv.RegisterLicenseRoutes()
	srv.RegisterUploadRoutes()
	srv.RegisterWebhookRoutes()
	srv.RegisterAdminRoutes()

	return &testEnv{server: srv, engine: engine, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// seedLicense creates a product, a package with the given limit and a license
// through the admin API and returns the license key.
func (e *testEnv) seedLicense(t *testing.T, domainLimit int) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/admin/v1/products", adminToken, gin.H{"slug": "seo-toolkit", "name": "SEO Toolkit"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var product struct {
		Data productdomain.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &product))

	w = e.do(t, http.MethodPost, "/admin/v1/products/"+product.Data.ID+"/packages", adminToken,
		gin.H{"slug": "single", "name": "Single site", "domain_limit": domainLimit})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/admin/v1/licenses", adminToken,
		gin.H{"product_slug": "seo-toolkit", "package_slug": "single"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var license struct {
		Data licensedomain.LicenseResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &license))
	require.NotEmpty(t, license.Data.LicenseKey)
	return license.Data.LicenseKey
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func licenseErrorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	code, _ := errBody["code"].(string)
	return code
}

type fakeSubscriptionService struct {
	subscriptionsyncdomain.Service
	err       error
	signature string
	trusted   int
}

func (f *fakeSubscriptionService) Ingest(ctx context.Context, payload []byte, signature string) (*subscriptionsyncdomain.IngestResult, error) {
	f.signature = signature
	if f.err != nil {
		return nil, f.err
	}
	return &subscriptionsyncdomain.IngestResult{EventID: "evt_1"}, nil
}

func (f *fakeSubscriptionService) IngestTrusted(ctx context.Context, payload []byte) (*subscriptionsyncdomain.IngestResult, error) {
	f.trusted++
	return &subscriptionsyncdomain.IngestResult{EventID: "evt_2", Duplicate: true}, nil
}

type fakeUploadService struct {
	csvuploaddomain.Service
	enqueued []csvuploaddomain.EnqueueRequest
}

func (f *fakeUploadService) Enqueue(ctx context.Context, req csvuploaddomain.EnqueueRequest) (*csvuploaddomain.JobResponse, error) {
	f.enqueued = append(f.enqueued, req)
	return &csvuploaddomain.JobResponse{
		ID:        "900",
		Domain:    req.Guard.Domain,
		Filename:  req.Filename,
		SizeBytes: int64(len(req.Content)),
		Status:    csvuploaddomain.JobStatusQueued,
	}, nil
}

func (f *fakeUploadService) Get(ctx context.Context, licenseID int64, id string) (*csvuploaddomain.JobResponse, error) {
	return nil, csvuploaddomain.ErrNotFound
}
