package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// Pool is the read side of the ledger served over HTTP.
type Pool interface {
	Ping(ctx context.Context) error
	PoolSummary(ctx context.Context) (ledger.Summary, error)
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type PoolResponse struct {
	PoolTotal   string `json:"pool_total"`
	Members     int    `json:"members"`
	ActiveDebts int    `json:"active_debts"`
	Outstanding string `json:"outstanding"`
}

func NewRouter(pool Pool, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/readyz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			log.Warn("readiness check failed", "error", err, "request_id", c.GetString(requestIDHeader))
			respondError(c, http.StatusServiceUnavailable, "store_unavailable", "storage is not available")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/pool", func(c *gin.Context) {
			s, err := pool.PoolSummary(c.Request.Context())
			if err != nil {
				log.Error("pool summary", "error", err, "request_id", c.GetString(requestIDHeader))
				respondError(c, http.StatusInternalServerError, "internal", "internal error")
				return
			}
			c.JSON(http.StatusOK, PoolResponse{
				PoolTotal:   s.PoolTotal.StringFixed(2),
				Members:     s.Members,
				ActiveDebts: s.ActiveDebts,
				Outstanding: s.Outstanding.StringFixed(2),
			})
		})
	}

	return router
}

// respondError writes a fixed client message. Store errors may carry driver
// or DSN details and only go to the log.
func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// requestID keeps an incoming X-Request-ID or generates one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}
