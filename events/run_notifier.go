package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"prestige_server/logging"
	"prestige_server/models"
)

// RunNotifier publishes models.MatchRunCompletedEvent to JetStream.
type RunNotifier struct {
	js      jetstream.JetStream
	subject string
}

func NewRunNotifier(js jetstream.JetStream, subject string) *RunNotifier {
	return &RunNotifier{js: js, subject: subject}
}

func (n *RunNotifier) NotifyRunCompleted(ctx context.Context, event models.MatchRunCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	msg.Header.Set(nats.MsgIdHdr, event.RunID)

	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", n.subject, err)
	}
	logging.Ctx(ctx).Info().Str("subject", n.subject).Msg("📢 Matching run announced")
	return nil
}
