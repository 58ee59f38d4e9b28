// Package bus implements the push-ingest Bus Subscriber (spec §4.3):
// subscribing to kit telemetry published over NATS and turning payloads
// into the same normalised records the HTTP Collector produces.
package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// Subjects this subscriber listens on. wardragon.> covers all of them;
// dispatch happens by exact subject / prefix match in the handler.
const (
	SubjectDrones       = "wardragon.drones"
	SubjectDronePrefix  = "wardragon.drone." // + drone_id
	SubjectAircraft     = "wardragon.aircraft"
	SubjectSignals      = "wardragon.signals"
	SubjectSystemHealth = "wardragon.system.attrs"
	subjectWildcard     = "wardragon.>"
)

// Writer is the subset of the Persistence Writer the subscriber needs.
type Writer interface {
	InsertTracks(ctx context.Context, records []models.Track) (models.IngestOutcome, error)
	InsertSignals(ctx context.Context, records []models.Signal) (models.IngestOutcome, error)
	InsertHealth(ctx context.Context, records []models.Health) (models.IngestOutcome, error)
	UpsertKit(ctx context.Context, patch models.KitUpsert) error
	TouchKit(ctx context.Context, kitID string, seenAt time.Time) error
}

// Subscriber is a lifecycle.Service wrapping a nats.Conn subscription on
// subjectWildcard. Malformed messages are dropped and counted, never
// restarting the subscriber (spec §4.3).
type Subscriber struct {
	conn   *nats.Conn
	writer Writer
	log    logger.Logger

	sub           *nats.Subscription
	droppedCount  atomic.Int64
}

// NewSubscriber connects to url and builds a Subscriber. The connection
// is established eagerly so config errors surface at startup.
func NewSubscriber(url, username, password string, tlsEnabled bool, writer Writer, log logger.Logger) (*Subscriber, error) {
	opts := []nats.Option{nats.Name("wardragon-analytics")}
	if username != "" {
		opts = append(opts, nats.UserInfo(username, password))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	return &Subscriber{conn: conn, writer: writer, log: log}, nil
}

// DroppedCount reports how many malformed messages have been discarded.
func (s *Subscriber) DroppedCount() int64 {
	return s.droppedCount.Load()
}

// Start subscribes and blocks until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.conn.Subscribe(subjectWildcard, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.sub = sub

	<-ctx.Done()
	return nil
}

// Stop drains the subscription and closes the connection, within the
// caller's deadline.
func (s *Subscriber) Stop(ctx context.Context) error {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil && s.log != nil {
			s.log.Warn().Err(err).Msg("bus: drain subscription failed")
		}
	}

	done := make(chan struct{})
	go func() {
		s.conn.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *nats.Msg) {
	now := time.Now().UTC()

	switch {
	case msg.Subject == SubjectDrones || hasPrefix(msg.Subject, SubjectDronePrefix):
		s.handleDrones(ctx, msg.Data, now)
	case msg.Subject == SubjectAircraft:
		s.handleAircraft(ctx, msg.Data, now)
	case msg.Subject == SubjectSignals:
		s.handleSignals(ctx, msg.Data, now)
	case msg.Subject == SubjectSystemHealth:
		s.handleSystemHealth(ctx, msg.Data, now)
	default:
		s.dropMessage(msg.Subject, "unrecognised subject")
	}
}

func (s *Subscriber) dropMessage(subject, reason string) {
	s.droppedCount.Add(1)
	if s.log != nil {
		s.log.Warn().Str("subject", subject).Str("reason", reason).Msg("bus: dropped malformed message")
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ensureKit performs spec §4.3's auto-registration: upsert the kit as
// mqtt-sourced (combining to "both" via the Writer's monotone lattice if
// it already exists as http), then touch last_seen.
func (s *Subscriber) ensureKit(ctx context.Context, kitID string, seenAt time.Time) {
	if kitID == "" {
		return
	}

	src := models.SourceMQTT
	enabled := true
	if err := s.writer.UpsertKit(ctx, models.KitUpsert{
		KitID:   kitID,
		Source:  &src,
		Enabled: &enabled,
	}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: auto-register upsert_kit failed")
		return
	}

	if err := s.writer.TouchKit(ctx, kitID, seenAt); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("kit_id", kitID).Msg("bus: touch_kit failed")
	}
}
