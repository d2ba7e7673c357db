package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
)

const (
	// subjectPrefix roots every library event subject
	subjectPrefix = "events.library"

	streamSetupTimeout = 10 * time.Second
)

// Publisher defines the interface for publishing library events to the
// message broker to enable mocking
type Publisher interface {
	// PublishEvent publishes a library event to the message broker
	PublishEvent(ctx context.Context, event *domain.LibraryEvent) error
	// Close closes the connection
	Close()
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
	clock      adapter.Clock
}

// NewPublisher creates a new NATS JetStream publisher
func NewPublisher(cfg config.NATSConfig, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON, clock adapter.Clock) (Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	// Publishes land in this stream, so make sure it exists up front
	ctx, cancel := context.WithTimeout(context.Background(), streamSetupTimeout)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{subjectPrefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %q: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
		clock:      clock,
	}, nil
}

// PublishEvent publishes a library event to NATS JetStream
func (p *publisher) PublishEvent(ctx context.Context, event *domain.LibraryEvent) error {
	logger.Debug("Publishing library event", zap.Any("event", event))

	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// The message id makes broker-side deduplication possible when a publish
	// gets retried after a lost ack
	msgID := ulid.MustNewDefault(p.clock.Now()).String()

	_, err = p.js.Publish(ctx, p.buildSubject(event), data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// buildSubject constructs the NATS subject based on the event.
// Format: events.library.{event_type}, e.g. events.library.game_added
func (p *publisher) buildSubject(event *domain.LibraryEvent) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, event.Type)
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
