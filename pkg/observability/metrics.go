package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels shared by the session counters.
const (
	OutcomeSuccess      = "success"
	OutcomeTransient    = "transient"
	OutcomeInvalidGrant = "invalid_grant"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// SessionMetrics records the Strava connection lifecycle. A nil
// *SessionMetrics records nothing.
type SessionMetrics struct {
	refreshes   metric.Int64Counter
	connects    metric.Int64Counter
	disconnects metric.Int64Counter
	connected   metric.Int64Gauge
}

func NewSessionMetrics(meter metric.Meter) (*SessionMetrics, error) {
	refreshes, err := meter.Int64Counter("strava_token_refreshes_total",
		metric.WithDescription("Strava access token refresh attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh counter: %w", err)
	}

	connects, err := meter.Int64Counter("strava_connects_total",
		metric.WithDescription("Strava connection attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create connect counter: %w", err)
	}

	disconnects, err := meter.Int64Counter("strava_disconnects_total",
		metric.WithDescription("Strava disconnections"))
	if err != nil {
		return nil, fmt.Errorf("failed to create disconnect counter: %w", err)
	}

	connected, err := meter.Int64Gauge("strava_connected_principals",
		metric.WithDescription("Connected principals as of the last quota recalculation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create connected gauge: %w", err)
	}

	return &SessionMetrics{
		refreshes:   refreshes,
		connects:    connects,
		disconnects: disconnects,
		connected:   connected,
	}, nil
}

func (m *SessionMetrics) RecordRefresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) RecordConnect(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.connects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) RecordDisconnect(ctx context.Context, principalKind string) {
	if m == nil {
		return
	}
	m.disconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("principal", principalKind)))
}

func (m *SessionMetrics) RecordConnected(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.connected.Record(ctx, int64(count))
}
