package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/therapybridge/therapybridge/internal/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxLogger       = "logger"
)

// requestID tags every request with a correlation ID, echoing a
// caller-supplied X-Request-ID when present, and derives a request-scoped
// logger carrying it.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		logger := s.log.With().Str("request_id", id).Logger()
		c.Set(ctxLogger, logger)
		c.Next()
	}
}

// requestLog emits one structured line per request and feeds the HTTP
// request counter.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, fmt.Sprintf("%dxx", status/100)).Inc()
		reqLog(c).Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// reqLog returns the request-scoped logger, falling back to the server
// logger if the middleware did not run.
func reqLog(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return &l
		}
	}
	l := zerolog.Nop()
	return &l
}

// fail writes the JSON error envelope and aborts the request.
func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":       code,
			"message":    message,
			"request_id": c.GetString(ctxRequestID),
		},
	})
}

// failInternal logs the underlying error and returns an opaque 500.
func (s *Server) failInternal(c *gin.Context, err error) {
	reqLog(c).Error().Err(err).Msg("request failed")
	s.fail(c, http.StatusInternalServerError, "internal", "internal error")
}

// perMinuteLimit builds the default per-IP rate limit middleware.
func (s *Server) perMinuteLimit(limit int) gin.HandlerFunc {
	return s.rateLimit("default", limiter.Rate{Period: time.Minute, Limit: int64(limit)})
}

// perHourLimit builds a named hourly budget for an expensive endpoint.
// Expensive routes carry both this and the default limit; the tighter
// budget is the one that bites.
func (s *Server) perHourLimit(name string, limit int) gin.HandlerFunc {
	return s.rateLimit(name, limiter.Rate{Period: time.Hour, Limit: int64(limit)})
}

// rateLimit enforces a fixed-window budget keyed on client IP. When the
// budget is exhausted the response is 429 with a Retry-After header and the
// remaining wait in the body.
func (s *Server) rateLimit(name string, rate limiter.Rate) gin.HandlerFunc {
	lim := limiter.New(memory.NewStore(), rate)
	return func(c *gin.Context) {
		lctx, err := lim.Get(c, name+":"+c.ClientIP())
		if err != nil {
			s.failInternal(c, err)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			retryAfter := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			s.fail(c, http.StatusTooManyRequests, "rate_limited",
				fmt.Sprintf("rate limit exceeded, retry in %d seconds", retryAfter))
			return
		}
		c.Next()
	}
}
