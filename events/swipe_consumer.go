package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"prestige_server/logging"
	"prestige_server/models"
)

var tracer = otel.Tracer("prestige_server/events")

// PreferenceRecorder is implemented by services.PreferenceService.
type PreferenceRecorder interface {
	RecordPreference(ctx context.Context, actorID, targetID string) (models.AppendResult, error)
}

type disposition int

const (
	ack disposition = iota
	nak
	term
)

func (d disposition) String() string {
	switch d {
	case ack:
		return "ack"
	case nak:
		return "nak"
	default:
		return "term"
	}
}

// SwipeConsumer feeds swipe events from a durable JetStream consumer into the
// preference store. Negative swipes are acknowledged and dropped.
type SwipeConsumer struct {
	js       jetstream.JetStream
	recorder PreferenceRecorder
	validate *validator.Validate

	Stream  string
	Subject string
	Durable string
	// Timeout bounds the handling of a single event.
	Timeout time.Duration
}

func NewSwipeConsumer(js jetstream.JetStream, recorder PreferenceRecorder, stream, subject, durable string) *SwipeConsumer {
	return &SwipeConsumer{
		js:       js,
		recorder: recorder,
		validate: validator.New(),
		Stream:   stream,
		Subject:  subject,
		Durable:  durable,
		Timeout:  5 * time.Second,
	}
}

// Serve consumes until ctx is cancelled. It is a suture service.
func (c *SwipeConsumer) Serve(ctx context.Context) error {
	if _, err := EnsureStream(ctx, c.js, c.Stream, c.Subject); err != nil {
		return err
	}
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.Stream, jetstream.ConsumerConfig{
		Durable:       c.Durable,
		FilterSubject: c.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.Durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) { c.handle(ctx, msg) })
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.Subject, err)
	}
	defer cc.Stop()

	logging.Info().Str("subject", c.Subject).Str("durable", c.Durable).Msg("📨 Swipe consumer started")
	<-ctx.Done()
	return ctx.Err()
}

func (c *SwipeConsumer) String() string {
	return "swipe-consumer"
}

func (c *SwipeConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Headers()))
	ctx, span := tracer.Start(ctx, "process_swipe", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	d := c.process(ctx, msg.Data())
	span.SetAttributes(attribute.String("disposition", d.String()))

	var err error
	switch d {
	case ack:
		err = msg.Ack()
	case nak:
		err = msg.NakWithDelay(time.Second)
	default:
		err = msg.Term()
	}
	if err != nil {
		logging.Warn().Err(err).Str("disposition", d.String()).Msg("⚠️ Failed to settle swipe message")
	}
}

// process decides what happens to one payload. Malformed events can never
// succeed and are terminated; store failures are redelivered.
func (c *SwipeConsumer) process(ctx context.Context, data []byte) disposition {
	var event models.SwipeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logging.Warn().Err(err).Msg("❌ Invalid swipe event format")
		return term
	}
	if err := c.validate.Struct(event); err != nil {
		logging.Warn().Err(err).Msg("❌ Invalid swipe event")
		return term
	}
	if !event.IsPositive {
		return ack
	}

	_, err := c.recorder.RecordPreference(ctx, event.ActorID, event.TargetID)
	switch {
	case err == nil:
		return ack
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrNotFound):
		logging.Info().Err(err).Str("actor_id", event.ActorID).Str("target_id", event.TargetID).Msg("🚫 Swipe rejected")
		return ack
	default:
		logging.Error().Err(err).Str("actor_id", event.ActorID).Msg("❌ Failed to record swipe, will retry")
		return nak
	}
}
