// Package ginrouter builds gin engines that trace every request with o11y.
package ginrouter

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/circleci/modellr/o11y"
)

var once sync.Once

func Default(ctx context.Context, serverName string) *gin.Engine {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	r := gin.New()
	r.Use(
		Middleware(o11y.FromContext(ctx), serverName),
		Recovery(),
	)
	return r
}

// Middleware opens a span per request and records a handler timing tagged by route and status.
func Middleware(provider o11y.Provider, serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "not-found"
		}

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := o11y.StartSpan(ctx, c.Request.Method+" "+route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		span.AddRawField("http.server_name", serverName)
		span.AddRawField("http.method", c.Request.Method)
		span.AddRawField("http.route", route)
		span.RecordMetric(o11y.Timing("handler", "http.server_name", "http.method", "http.route", "http.status_code"))

		c.Next()

		status := c.Writer.Status()
		span.AddRawField("http.status_code", strconv.Itoa(status))
		if status >= http.StatusInternalServerError {
			o11y.AddResultToSpan(span, errors.New(http.StatusText(status)))
			return
		}
		o11y.AddResultToSpan(span, nil)
	}
}

// Recovery turns a handler panic into a 500 and records it on the request span.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		c.AbortWithStatus(http.StatusInternalServerError)
		ctx := c.Request.Context()
		if span := o11y.FromContext(ctx).GetSpan(ctx); span != nil {
			_ = o11y.HandlePanic(ctx, span, recovered, c.Request)
		}
	})
}
