package broker

import (
	"context"
	"time"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/dataset"
	"github.com/school-platform/attendance-service/internal/loggingclient"
)

// NewFromConfig creates a broker from configuration. A disabled broker
// yields the no-op implementation.
func NewFromConfig(cfg config.BrokerConfig) (Broker, error) {
	if !cfg.Enabled {
		return NewNoOpBroker(), nil
	}

	switch cfg.Type {
	case "kafka":
		return NewKafkaBroker([]string{cfg.URL}, cfg.GroupID)
	default:
		return NewRabbitMQBroker(cfg.URL, DefaultRetryConfig())
	}
}

// InvalidationService drops stale local dataset copies when upstream
// announces a change.
type InvalidationService struct {
	broker  Broker
	fetcher *dataset.Fetcher
	topic   string
	logger  *loggingclient.Client
}

// NewInvalidationService creates a new invalidation service.
func NewInvalidationService(b Broker, fetcher *dataset.Fetcher, topic string, logger *loggingclient.Client) *InvalidationService {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}
	return &InvalidationService{
		broker:  b,
		fetcher: fetcher,
		topic:   topic,
		logger:  logger,
	}
}

// Start starts listening for invalidation events.
func (s *InvalidationService) Start(ctx context.Context) error {
	return s.broker.Subscribe(ctx, s.topic, s.handleInvalidation)
}

// handleInvalidation drops the named datasets from the local cache so the
// next fetch goes back to the network tiers.
func (s *InvalidationService) handleInvalidation(event InvalidationEvent) error {
	ctx := context.Background()

	for _, name := range event.Datasets {
		dropped := s.fetcher.Invalidate(name)
		s.logger.Info(ctx, "dataset invalidated",
			loggingclient.String("dataset", name),
			loggingclient.String("action", event.Action),
			loggingclient.Bool("dropped", dropped))
	}

	return nil
}

// PublishInvalidation publishes an invalidation event.
func (s *InvalidationService) PublishInvalidation(ctx context.Context, datasets []string, action string) error {
	event := InvalidationEvent{
		Datasets:  datasets,
		Action:    action,
		Timestamp: time.Now().Unix(),
	}

	return s.broker.Publish(ctx, s.topic, event)
}

// Close closes the invalidation service.
func (s *InvalidationService) Close() error {
	return s.broker.Close()
}
