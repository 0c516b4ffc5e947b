// Package statusapi exposes a read-only debug HTTP API over the scheduler's
// live state: pending apps, naughty apps, the wakeup timeline, and recent
// log lines. It is not part of the freeze decision path.
package statusapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// State is the read-only view of scheduler state the debug API serves.
// Implemented by *scheduler.Scheduler.
type State interface {
	PendingUIDs() map[int]int
	NaughtyUIDs() []int
	TimelineSnapshot() map[int]uint32
	WorkMode() string
}

// LogSource is the read-only view of recent log lines.
type LogSource interface {
	RecentLines(n int) []string
}

// zapLogger mirrors the teacher's request logging middleware: every
// request is logged at a level derived from its response status.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joined := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if joined != nil {
			fields = append(fields, zap.Error(joined))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// NewRouter builds the debug API's gin engine. corsDev, when true, allows
// cross-origin GET requests from http://localhost:5173 only — for developing a companion dashboard
// against a desk-bound daemon, never for a production device.
func NewRouter(log *zap.Logger, state State, logs LogSource, corsDev bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if corsDev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(requestID())
	r.Use(zapLogger(log))

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"work_mode": state.WorkMode(),
			"pending":   len(state.PendingUIDs()),
			"naughty":   len(state.NaughtyUIDs()),
		})
	})

	r.GET("/apps/pending", func(c *gin.Context) {
		c.JSON(http.StatusOK, state.PendingUIDs())
	})

	r.GET("/apps/naughty", func(c *gin.Context) {
		c.JSON(http.StatusOK, state.NaughtyUIDs())
	})

	r.GET("/timeline", func(c *gin.Context) {
		c.JSON(http.StatusOK, state.TimelineSnapshot())
	})

	r.GET("/logs", func(c *gin.Context) {
		n := 200
		c.JSON(http.StatusOK, logs.RecentLines(n))
	})

	return r
}
