package messaging_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/messaging"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type fakeConn struct {
	closed bool
}

func (f *fakeConn) Close()               { f.closed = true }
func (f *fakeConn) LastError() error     { return nil }
func (f *fakeConn) ConnectedUrl() string { return "nats://localhost:4222" }

type fakeJetStream struct {
	subjects  []string
	payloads  [][]byte
	optCount  []int
	streams   []jetstream.StreamConfig
	err       error
	streamErr error
}

func (f *fakeJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	f.streams = append(f.streams, cfg)
	return nil, nil
}

func (f *fakeJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	f.optCount = append(f.optCount, len(opts))
	return &jetstream.PubAck{}, nil
}

type fakeNatsJetStream struct {
	conn *fakeConn
	js   *fakeJetStream
	urls []string
}

func (f *fakeNatsJetStream) Connect(url string, options ...nats.Option) (adapter.NatsConn, adapter.JetStream, error) {
	f.urls = append(f.urls, url)
	return f.conn, f.js, nil
}

func TestPublishEvent(t *testing.T) {
	js := &fakeJetStream{}
	natsJS := &fakeNatsJetStream{conn: &fakeConn{}, js: js}

	cfg := config.NATSConfig{
		URL:            "nats://localhost:4222",
		StreamName:     "QUESTLOG_EVENTS",
		ConnectionName: "questlog-test",
	}

	pub, err := messaging.NewPublisher(cfg, natsJS, adapter.NewJSON(), adapter.NewClock())
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://localhost:4222"}, natsJS.urls)

	// The stream is ensured on construction
	require.Len(t, js.streams, 1)
	assert.Equal(t, "QUESTLOG_EVENTS", js.streams[0].Name)
	assert.Equal(t, []string{"events.library.>"}, js.streams[0].Subjects)

	event := &domain.LibraryEvent{
		Type:       domain.EventGameAdded,
		Username:   "alice",
		GameID:     7,
		GameName:   "Hollow Knight",
		OccurredAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}

	require.NoError(t, pub.PublishEvent(context.Background(), event))

	require.Len(t, js.subjects, 1)
	assert.Equal(t, "events.library.game_added", js.subjects[0])
	// One publish option: the deduplication message id
	assert.Equal(t, 1, js.optCount[0])

	var decoded domain.LibraryEvent
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, *event, decoded)

	pub.Close()
	assert.True(t, natsJS.conn.closed)
}

func TestNewPublisher_StreamSetupFailure(t *testing.T) {
	js := &fakeJetStream{streamErr: nats.ErrTimeout}
	natsJS := &fakeNatsJetStream{conn: &fakeConn{}, js: js}

	_, err := messaging.NewPublisher(config.NATSConfig{
		URL:        "nats://localhost:4222",
		StreamName: "QUESTLOG_EVENTS",
	}, natsJS, adapter.NewJSON(), adapter.NewClock())
	require.Error(t, err)
	// The half-open connection is not leaked
	assert.True(t, natsJS.conn.closed)
}
