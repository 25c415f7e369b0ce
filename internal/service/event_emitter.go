package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/pkg/events"
	"github.com/noah-isme/sma-health-api/pkg/middleware/requestid"
)

// eventEmitter publishes domain events best effort: failures are logged and counted, never returned.
type eventEmitter struct {
	publisher events.Publisher
	metrics   *MetricsService
	logger    *zap.Logger
}

func newEventEmitter(publisher events.Publisher, metrics *MetricsService, logger *zap.Logger) eventEmitter {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return eventEmitter{publisher: publisher, metrics: metrics, logger: logger}
}

func (e eventEmitter) emit(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), evts...); err != nil {
		e.metrics.IncEventFailure()
		e.logger.Warn("publish domain events failed",
			zap.String("type", evts[0].Type),
			zap.Int("count", len(evts)),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err),
		)
	}
}
