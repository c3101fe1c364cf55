package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/licensor/internal/audit"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/authorization"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/csvupload"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	"github.com/smallbiznis/licensor/internal/license"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/observability"
	obslogger "github.com/smallbiznis/licensor/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	obstracing "github.com/smallbiznis/licensor/internal/observability/tracing"
	"github.com/smallbiznis/licensor/internal/product"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	"github.com/smallbiznis/licensor/internal/ratelimit"
	"github.com/smallbiznis/licensor/internal/subscriptionsync"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires every HTTP surface: the public license API, uploads, the
// subscription webhook and the admin API.
var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	product.Module,
	license.Module,
	subscriptionsync.Module,
	csvupload.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterLicenseRoutes()
		s.RegisterUploadRoutes()
		s.RegisterWebhookRoutes()
		s.RegisterAdminRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type adminCredential struct {
	name string
	role string
	hash [sha256.Size]byte
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.PolicyHolder

	licenseSvc      licensedomain.Service
	licenseAdminSvc licensedomain.AdminService
	productSvc      productdomain.Service
	auditSvc        auditdomain.Service
	authzSvc        authorization.Service
	uploadSvc       csvuploaddomain.Service
	subscriptionSvc subscriptionsyncdomain.Service
	limiter         *ratelimit.LicenseAPILimiter
	obsMetrics      *obsmetrics.Metrics

	adminCredentials []adminCredential
}

type ServerParams struct {
	fx.In

	Gin    *gin.Engine
	Cfg    config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder

	LicenseSvc      licensedomain.Service
	LicenseAdminSvc licensedomain.AdminService     `optional:"true"`
	ProductSvc      productdomain.Service          `optional:"true"`
	AuditSvc        auditdomain.Service            `optional:"true"`
	AuthzSvc        authorization.Service          `optional:"true"`
	UploadSvc       csvuploaddomain.Service        `optional:"true"`
	SubscriptionSvc subscriptionsyncdomain.Service `optional:"true"`
	Limiter         *ratelimit.LicenseAPILimiter   `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		genID:           p.GenID,
		clock:           p.Clock,
		policy:          p.Policy,
		licenseSvc:      p.LicenseSvc,
		licenseAdminSvc: p.LicenseAdminSvc,
		productSvc:      p.ProductSvc,
		auditSvc:        p.AuditSvc,
		authzSvc:        p.AuthzSvc,
		uploadSvc:       p.UploadSvc,
		subscriptionSvc: p.SubscriptionSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}
	for _, token := range p.Cfg.Admin.Tokens {
		s.adminCredentials = append(s.adminCredentials, adminCredential{
			name: token.Name,
			role: token.Role,
			hash: sha256.Sum256([]byte(token.Token)),
		})
	}
	if p.Policy != nil {
		s.engine.MaxMultipartMemory = p.Policy.Get().UploadMaxBytes + (1 << 20)
	}
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterLicenseRoutes() {
	licenses := s.engine.Group("/api/v1/licenses", s.LicenseRateLimit())

	licenses.POST("/validate", s.ValidateLicense)
	licenses.POST("/activate", s.ActivateLicense)
	licenses.POST("/deactivate", s.DeactivateLicense)
	licenses.POST("/check", s.CheckLicense)
}

func (s *Server) RegisterUploadRoutes() {
	if s.uploadSvc == nil {
		return
	}
	uploads := s.engine.Group("/api/v1/uploads", s.LicenseRateLimit(), s.LicenseGuard())

	uploads.POST("/csv", s.UploadCSV)
	uploads.GET("/:id", s.GetUpload)
}

func (s *Server) RegisterWebhookRoutes() {
	if s.subscriptionSvc == nil {
		return
	}
	s.engine.POST("/api/v1/webhooks/subscriptions", s.ReceiveSubscriptionWebhook)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin/v1", s.AdminAuthRequired())

	// -------- Products --------
	admin.GET("/products", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductView), s.ListProducts)
	admin.POST("/products", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductCreate), s.CreateProduct)
	admin.GET("/products/:id", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductView), s.GetProductByID)
	admin.POST("/products/:id/archive", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductUpdate), s.ArchiveProduct)
	admin.GET("/products/:id/packages", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductView), s.ListPackages)
	admin.POST("/products/:id/packages", s.authorizeAdmin(authorization.ObjectProduct, authorization.ActionProductCreate), s.CreatePackage)

	// -------- Licenses --------
	admin.GET("/licenses", s.authorizeAdmin(authorization.ObjectLicense, authorization.ActionLicenseView), s.ListLicenses)
	admin.POST("/licenses", s.authorizeAdmin(authorization.ObjectLicense, authorization.ActionLicenseCreate), s.CreateLicense)
	admin.GET("/licenses/:key", s.authorizeAdmin(authorization.ObjectLicense, authorization.ActionLicenseView), s.GetLicense)
	admin.POST("/licenses/:key/status", s.authorizeAdmin(authorization.ObjectLicense, authorization.ActionLicenseUpdate), s.SetLicenseStatus)
	admin.GET("/licenses/:key/activations", s.authorizeAdmin(authorization.ObjectActivation, authorization.ActionActivationView), s.ListLicenseActivations)
	admin.POST("/licenses/:key/deactivate", s.authorizeAdmin(authorization.ObjectActivation, authorization.ActionActivationDeactivate), s.AdminDeactivateDomain)
	admin.GET("/licenses/:key/audit-logs", s.authorizeAdmin(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListLicenseAuditLogs)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorizeAdmin(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	// -------- Subscription sync --------
	admin.POST("/subscription-events", s.authorizeAdmin(authorization.ObjectSubscription, authorization.ActionSubscriptionIngest), s.IngestSubscriptionEvent)
}
