// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package publish emits ingested events to NATS JetStream so downstream
// consumers (site builders, notification bots) can react without
// polling the database. Publishing is optional and always best-effort:
// the pipeline persists first and tolerates a dead broker.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const (
	defaultSubjectPrefix = "cartelera"
	schemaVersion        = 1
)

// envelope is the wire format of one events.ingested message.
type envelope struct {
	SchemaVersion int           `json:"schema_version"`
	PublishedAt   time.Time     `json:"published_at"`
	Event         *models.Event `json:"event"`
}

// Publisher sends ingested events to a JetStream subject. Safe for
// concurrent use.
type Publisher struct {
	pub     message.Publisher
	subject string
	cb      *gobreaker.CircuitBreaker[any]
}

// New connects to the configured broker. Returns (nil, nil) when
// publishing is disabled so callers can wire the result directly.
func New(cfg config.NATSConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.URL == "" {
		return nil, errors.New("publish: nats enabled but no URL configured")
	}

	logger := newLoggerAdapter()
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(5),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return NewWithPublisher(pub, cfg.SubjectPrefix), nil
}

// NewWithPublisher wraps an existing Watermill publisher. Tests and
// embedded brokers use this to skip the NATS connection.
func NewWithPublisher(pub message.Publisher, subjectPrefix string) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "nats-publisher",
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit state change")
		},
	})
	return &Publisher{
		pub:     pub,
		subject: subjectPrefix + ".events.ingested",
		cb:      cb,
	}
}

// Subject returns the JetStream subject messages are published to.
func (p *Publisher) Subject() string {
	return p.subject
}

// PublishIngested publishes one message per event, in order. The
// message UUID is the event's process UUID and doubles as the
// Nats-Msg-Id, so JetStream deduplicates redelivered batches. The
// first failure aborts the batch.
func (p *Publisher) PublishIngested(ctx context.Context, events []*models.Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(envelope{
			SchemaVersion: schemaVersion,
			PublishedAt:   time.Now().UTC(),
			Event:         ev,
		})
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}

		msg := message.NewMessage(ev.ID.String(), data)
		msg.Metadata.Set("source", ev.SourceSlug)
		msg.Metadata.Set("category", ev.PrimaryCategory())
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)

		_, err = p.cb.Execute(func() (any, error) {
			return nil, p.pub.Publish(p.subject, msg)
		})
		if err != nil {
			metrics.NATSPublishErrors.Inc()
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("broker unavailable (circuit open): %w", err)
			}
			return fmt.Errorf("publish event %s: %w", ev.ID, err)
		}
		metrics.NATSPublished.Inc()
	}
	return nil
}

// Close shuts the underlying publisher down.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// loggerAdapter bridges Watermill's logging to zerolog.
type loggerAdapter struct {
	log zerolog.Logger
}

func newLoggerAdapter() watermill.LoggerAdapter {
	return &loggerAdapter{log: logging.WithComponent("publish")}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.log.Error().Err(err), fields).Msg(msg)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.log.Info(), fields).Msg(msg)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.log.Debug(), fields).Msg(msg)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.log.Trace(), fields).Msg(msg)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logCtx := a.log.With()
	for k, v := range fields {
		logCtx = logCtx.Interface(k, v)
	}
	return &loggerAdapter{log: logCtx.Logger()}
}

func (a *loggerAdapter) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
