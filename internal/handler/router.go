package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
)

// Checker reports whether a backing service is reachable.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// RouterOptions carries what NewRouter wires together. DB is required; Redis
// may be nil when the queue runs in memory.
type RouterOptions struct {
	Handler  *Handler
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	DB       Checker
	Redis    Checker

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	RateLimitPerMin      int
	FrontendDir          string
	HSTS                 bool
}

// NewRouter builds the gin engine with middleware, API routes, ops endpoints
// and the static frontend.
func NewRouter(opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(httpmiddleware.Recovery(logger))
	r.Use(httpmiddleware.Logger(logger, "/healthz", "/metrics"))
	if opts.Metrics != nil {
		r.Use(httpmiddleware.Metrics(opts.Metrics.HTTPRequests, opts.Metrics.HTTPDuration))
	}
	r.Use(cors.New(corsConfig(opts.CORSAllowedOrigins, opts.CORSAllowCredentials)))
	r.Use(httpmiddleware.SecurityHeaders(opts.HSTS))
	r.Use(httpmiddleware.NewTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).Middleware())

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", health(opts))

	h := opts.Handler
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)

	r.POST("/classes", h.CreateClass)
	r.GET("/classes/:org_id", h.ListClasses)
	r.DELETE("/classes/:class_id", h.DeleteClass)

	r.POST("/register-user", h.RegisterUser)
	r.POST("/update-user", h.UpdateUser)
	r.GET("/users/:org_id", h.ListUsers)
	r.DELETE("/users/:user_id", h.DeleteUser)

	r.POST("/mark-attendance", h.MarkAttendance)
	r.GET("/reports/daily/:org_id", h.DailyReport)
	r.GET("/reports/individual/:user_id", h.IndividualReport)

	serveFrontend(r, opts.FrontendDir)
	return r
}

func corsConfig(origins []string, credentials bool) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: credentials,
		MaxAge:           24 * time.Hour,
	}
	wildcard := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	if wildcard {
		// Echo the caller's origin so credentialed requests still work.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func health(opts RouterOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbHealthy := opts.DB != nil && opts.DB.Healthy(ctx)
		body := gin.H{
			"status":       "ok",
			"db":           dbHealthy,
			"object_store": opts.Handler.svc.StorageConfigured(),
		}
		if opts.Redis != nil {
			body["redis"] = opts.Redis.Healthy(ctx)
		} else {
			body["redis"] = "disabled"
		}

		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}

func serveFrontend(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	r.GET("/", func(c *gin.Context) {
		if dir != "" {
			if fi, err := os.Stat(index); err == nil && !fi.IsDir() {
				c.File(index)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"error": "Frontend not found"})
	})
	if dir == "" {
		return
	}
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		r.Static("/frontend", dir)
	}
}
