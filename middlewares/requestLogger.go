package middlewares

import (
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/contracts_backend")

// RequestLogger tags every request with a correlation id, wraps it in a
// span and logs the outcome with timing.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		c.Header("X-Correlation-Id", correlationId)

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		ctx, span := tracer.Start(ctx, c.FullPath())
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("correlation_id", correlationId),
		)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		config.GetLogger().WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"duration_ms":    time.Since(start).Milliseconds(),
			"correlation_id": correlationId,
		}).Info("request completed")
	}
}
