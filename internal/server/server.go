package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/webhook"
	"github.com/smallbiznis/scorebench/internal/config"
	"github.com/smallbiznis/scorebench/internal/observability"
	obslogger "github.com/smallbiznis/scorebench/internal/observability/logger"
	obstracing "github.com/smallbiznis/scorebench/internal/observability/tracing"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log.Named("http"),
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if path := obsCfg.MetricsRoute(); path != "" {
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}
	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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

type ServerParams struct {
	fx.In

	Engine   *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Ingestor *webhook.Ingestor
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	ingestor *webhook.Ingestor
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:   p.Engine,
		cfg:      p.Cfg,
		log:      p.Log.Named("http"),
		ingestor: p.Ingestor,
	}
	s.registerBillingRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/api/billing")
	billing.POST("/webhooks/stripe", s.HandleStripeWebhook)
}
