package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sitedash/internal/observability"
	"sitedash/internal/onboarding"
	"sitedash/internal/service"
)

// RoutingStepChanged is published whenever a commit moves the onboarding
// step, in addition to the event for the operation itself.
const RoutingStepChanged = "onboarding.step_changed"

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Publisher sends a message body under a routing key. *RabbitMQ implements
// it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// SessionEvent is the JSON body of every published event. It carries ids and
// steps only: no token, fingerprint or contact details.
type SessionEvent struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	SessionID    string          `json:"session_id"`
	UserID       string          `json:"user_id,omitempty"`
	Step         onboarding.Step `json:"onboarding_step"`
	PreviousStep onboarding.Step `json:"previous_step,omitempty"`
	Reason       string          `json:"reason"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Reasons published under their own routing key.
var lifecycleReasons = map[service.Reason]bool{
	service.ReasonLogin:       true,
	service.ReasonRegistered:  true,
	service.ReasonLogout:      true,
	service.ReasonInvalidated: true,
	service.ReasonSocialLogin: true,
}

type outgoing struct {
	key  string
	body []byte
}

// EventPublisher turns session changes into broker events. SessionChanged
// only queues; Run does the publishing so a slow broker never holds up a
// session operation.
type EventPublisher struct {
	pub     Publisher
	queue   chan outgoing
	timeout time.Duration
	now     func() time.Time
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{
		pub:     pub,
		queue:   make(chan outgoing, defaultQueueSize),
		timeout: defaultPublishTimeout,
		now:     time.Now,
	}
}

// SessionChanged implements service.Observer.
func (p *EventPublisher) SessionChanged(ctx context.Context, change service.Change) {
	for _, ev := range p.events(change) {
		body, err := json.Marshal(ev)
		if err != nil {
			observability.FromContext(ctx).Error("failed to marshal session event", slog.String("error", err.Error()))
			continue
		}
		select {
		case p.queue <- outgoing{key: ev.Type, body: body}:
		default:
			observability.EventsPublishedTotal.WithLabelValues(ev.Type, "dropped").Inc()
			observability.FromContext(ctx).Warn("event queue full, dropping session event",
				slog.String("routing_key", ev.Type))
		}
	}
}

func (p *EventPublisher) events(change service.Change) []SessionEvent {
	base := SessionEvent{
		SessionID:    change.SessionID,
		Step:         change.Snapshot.OnboardingStep,
		PreviousStep: change.PreviousStep,
		Reason:       string(change.Reason),
		OccurredAt:   p.now().UTC(),
	}
	if u := change.Snapshot.User; u != nil {
		base.UserID = u.ID.String()
	}

	var out []SessionEvent
	if lifecycleReasons[change.Reason] {
		ev := base
		ev.ID = uuid.NewString()
		ev.Type = string(change.Reason)
		out = append(out, ev)
	}
	if change.StepChanged() {
		ev := base
		ev.ID = uuid.NewString()
		ev.Type = RoutingStepChanged
		out = append(out, ev)
	}
	return out
}

// Run publishes queued events until ctx ends, then drains what is left with
// a short grace period.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.publish(ctx, msg)
		}
	}
}

func (p *EventPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	for {
		select {
		case msg := <-p.queue:
			p.publish(ctx, msg)
		default:
			return
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, msg outgoing) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pub.Publish(ctx, msg.key, msg.body); err != nil {
		observability.EventsPublishedTotal.WithLabelValues(msg.key, "failed").Inc()
		slog.Error("failed to publish session event",
			slog.String("routing_key", msg.key),
			slog.String("error", err.Error()))
		return
	}
	observability.EventsPublishedTotal.WithLabelValues(msg.key, "ok").Inc()
	slog.Debug("published session event", slog.String("routing_key", msg.key))
}
