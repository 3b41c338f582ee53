package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Heyzerohey/packhey/internal/cache"
	"github.com/Heyzerohey/packhey/internal/config"
	creditdomain "github.com/Heyzerohey/packhey/internal/creditledger/domain"
	"github.com/Heyzerohey/packhey/internal/observability/logger"
	"github.com/Heyzerohey/packhey/internal/observability/metrics"
	packdomain "github.com/Heyzerohey/packhey/internal/pack/domain"
	paymentdomain "github.com/Heyzerohey/packhey/internal/payment/domain"
	subscriptiondomain "github.com/Heyzerohey/packhey/internal/subscription/domain"
)

type Params struct {
	fx.In

	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	Engine          *gin.Engine
	PackSvc         packdomain.Service
	CreditSvc       creditdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	Checkout        paymentdomain.CheckoutProvider
}

// Server owns the HTTP surface: the authenticated Pro API, the
// unauthenticated signer flow, and the provider webhooks.
type Server struct {
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	engine          *gin.Engine
	packSvc         packdomain.Service
	creditSvc       creditdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	checkout        paymentdomain.CheckoutProvider

	signerLinks   cache.Cache[string, snowflake.ID]
	signerLimiter *rateLimiter
	webhookStats  *metrics.WebhookMetrics
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	return engine
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		engine:          p.Engine,
		packSvc:         p.PackSvc,
		creditSvc:       p.CreditSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		checkout:        p.Checkout,
		signerLinks:     cache.NewSignerLinkCache(),
		signerLimiter:   newRateLimiter(60, time.Minute),
		webhookStats: metrics.WebhookWithConfig(metrics.Config{
			ServiceName: "packhey",
			Environment: p.Cfg.Environment,
		}),
	}
}

// RegisterRoutes wires all HTTP routes.
func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api", s.APIKeyRequired())
	{
		api.POST("/packages", s.CreatePackage)
		api.GET("/packages", s.ListPackages)
		api.GET("/packages/:id", s.GetPackage)
		api.GET("/credits", s.GetCredits)
		api.POST("/credits/checkout", s.CreateCreditCheckout)
		api.GET("/subscription", s.GetSubscription)
		api.POST("/subscription/checkout", s.CreateSubscriptionCheckout)
	}

	signer := s.engine.Group("/s", s.SignerRateLimit())
	{
		signer.GET("/:linkID", s.GetSignerView)
		signer.POST("/:linkID/documents", s.UploadSignerDocument)
		signer.POST("/:linkID/checkout", s.CreateSignerCheckout)
	}

	webhooks := s.engine.Group("/webhooks")
	{
		webhooks.POST("/signing", s.SigningWebhook)
		webhooks.POST("/payment", s.PaymentWebhook)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SignerRateLimit throttles the unauthenticated signer flow per client IP,
// slowing link enumeration.
func (s *Server) SignerRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.signerLimiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			listener, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)
