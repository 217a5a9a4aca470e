package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/bookings"
	"submission-backend/internal/queues"
	"submission-backend/internal/shared/config"
	"submission-backend/internal/shared/metrics"
	"submission-backend/internal/shared/server/middleware"
	"submission-backend/internal/shared/server/respond"
	"submission-backend/internal/submissions"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config            config.Config
	QueueHandler      *queues.Handler
	SubmissionHandler *submissions.Handler
	BookingHandler    *bookings.Handler

	// LocalUploads serves issued upload URLs when the local object
	// store is in use. Nil with S3, where presigned URLs bypass the API.
	LocalUploads http.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	if deps.LocalUploads != nil {
		r.PUT("/uploads/:token", gin.WrapH(deps.LocalUploads))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.Session())
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 20},
			// Progress polling runs on a short interval; give it headroom.
			"POLLING": {Rate: 20, Burst: 60},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				switch c.FullPath() {
				case "/api/v1/queues/:id", "/api/v1/queues/current":
					return "POLLING"
				}
			}
			return ""
		},
	}))
	if deps.QueueHandler != nil {
		deps.QueueHandler.RegisterRoutes(api)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterRoutes(api)
	}
	if deps.BookingHandler != nil {
		deps.BookingHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
