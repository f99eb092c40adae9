package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/readalong-api/internal/observability"
)

// EventType names a progress transition.
type EventType string

const (
	EventActivityCompleted EventType = "activity.completed"
	EventDayCompleted      EventType = "day.completed"
	EventDayUnlocked       EventType = "day.unlocked"
	EventPlanCompleted     EventType = "plan.completed"
	EventAssessmentScored  EventType = "assessment.scored"
)

// ProgressEvent is broadcast to devices following a plan and to local handlers.
type ProgressEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	ParentID     uint      `json:"parent_id"`
	StudentID    uint      `json:"student_id"`
	PlanID       uint      `json:"plan_id,omitempty"`
	DayIndex     int       `json:"day_index,omitempty"`
	ActivityType string    `json:"activity_type,omitempty"`
	AssessmentID uint      `json:"assessment_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ProgressHandler reacts to events published by this node.
type ProgressHandler func(ctx context.Context, event ProgressEvent)

// ProgressEventBus fans progress events out to stream subscribers on every node.
// Handlers only see events published locally so side effects run once.
type ProgressEventBus interface {
	Publish(ctx context.Context, events ...ProgressEvent)
	Subscribe(planID uint) (<-chan ProgressEvent, func())
	Handle(handler ProgressHandler)
	Start(ctx context.Context)
	// Wait blocks until in-flight handlers return.
	Wait()
}

const (
	progressBufferSize = 16
	seenEventsCapacity = 512
	handlerTimeout     = 2 * time.Minute
)

type progressEnvelope struct {
	Source string        `json:"source"`
	Event  ProgressEvent `json:"event"`
}

type progressEventBus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	broker       *progressBroker
	nodeID       string
	now          func() time.Time

	handlersMu sync.RWMutex
	handlers   []ProgressHandler
	inflight   sync.WaitGroup

	seenMu    sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

type progressBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan ProgressEvent]struct{}
}

// NewProgressEventBus constructs the event bus. Redis and NATS are optional.
func NewProgressEventBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ProgressEventBus {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":progress"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".progress"
	}
	return &progressEventBus{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "progress_events").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/readalong-api/internal/service/progress_events"),
		broker:       &progressBroker{subscribers: make(map[uint]map[chan ProgressEvent]struct{})},
		nodeID:       uuid.NewString(),
		now:          time.Now,
		seen:         make(map[string]struct{}),
	}
}

func (b *progressEventBus) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		b.consumeNATS(ctx)
	}
}

func (b *progressEventBus) Handle(handler ProgressHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *progressEventBus) Wait() {
	b.inflight.Wait()
}

func (b *progressEventBus) Publish(ctx context.Context, events ...ProgressEvent) {
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = b.now().UTC()
		}

		spanCtx, span := b.tracer.Start(ctx, "progress.publish", trace.WithAttributes(
			attribute.String("event.type", string(event.Type)),
			attribute.Int64("plan.id", int64(event.PlanID)),
		))

		b.markSeen(event.ID)
		b.broker.broadcast(event)
		observability.ProgressEvents().WithLabelValues(string(event.Type)).Inc()
		if err := b.forward(spanCtx, event); err != nil {
			span.RecordError(err)
			b.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to forward progress event")
		}
		b.dispatch(spanCtx, event)
		span.End()
	}
}

func (b *progressEventBus) dispatch(ctx context.Context, event ProgressEvent) {
	b.handlersMu.RLock()
	handlers := append([]ProgressHandler(nil), b.handlers...)
	b.handlersMu.RUnlock()

	for _, handler := range handlers {
		b.inflight.Add(1)
		go func(handle ProgressHandler) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().Interface("panic", r).Str("event", string(event.Type)).Msg("progress handler panicked")
				}
			}()
			handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
			defer cancel()
			handle(handlerCtx, event)
		}(handler)
	}
}

func (b *progressEventBus) Subscribe(planID uint) (<-chan ProgressEvent, func()) {
	channel := make(chan ProgressEvent, progressBufferSize)
	b.broker.subscribe(planID, channel)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.broker.unsubscribe(planID, channel)
			observability.StreamClientsActive().Dec()
		})
	}
	return channel, cleanup
}

func (b *progressEventBus) forward(ctx context.Context, event ProgressEvent) error {
	payload, err := json.Marshal(progressEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *progressEventBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("progress redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

// consumeNATS uses a plain subscription: every node must relay events to its own stream clients.
func (b *progressEventBus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats progress subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain progress nats subscription")
		}
	}()
}

func (b *progressEventBus) handleRemote(payload []byte) {
	var envelope progressEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid progress event payload")
		return
	}
	if envelope.Source == b.nodeID {
		return
	}
	// Redis and NATS may both deliver the same event.
	if !b.markSeen(envelope.Event.ID) {
		return
	}
	b.broker.broadcast(envelope.Event)
}

// markSeen records id and reports whether it was new.
func (b *progressEventBus) markSeen(id string) bool {
	if id == "" {
		return true
	}
	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.seenOrder = append(b.seenOrder, id)
	if len(b.seenOrder) > seenEventsCapacity {
		delete(b.seen, b.seenOrder[0])
		b.seenOrder = b.seenOrder[1:]
	}
	return true
}

func (p *progressBroker) subscribe(planID uint, ch chan ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscribers[planID]; !exists {
		p.subscribers[planID] = make(map[chan ProgressEvent]struct{})
	}
	p.subscribers[planID][ch] = struct{}{}
}

func (p *progressBroker) unsubscribe(planID uint, ch chan ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if subscribers, ok := p.subscribers[planID]; ok {
		if _, found := subscribers[ch]; !found {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(p.subscribers, planID)
		}
	}
}

func (p *progressBroker) broadcast(event ProgressEvent) {
	if event.PlanID == 0 {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	for ch := range p.subscribers[event.PlanID] {
		select {
		case ch <- event:
		default:
		}
	}
}
