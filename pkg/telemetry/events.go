package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/specfleet/specfleet/pkg/activity"
)

// Notification is the structured update delivered to operator UIs: activity
// state changes and plan lifecycle events. Delivery is best-effort; the
// orchestration path never waits for it.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// Timestamp is when the notification was created.
	Timestamp time.Time `json:"timestamp"`

	// Type is the notification type.
	Type string `json:"type"`

	// Component identifies the originating component.
	Component string `json:"component"`

	// PlanID is the associated plan id, if applicable.
	PlanID string `json:"plan_id,omitempty"`

	// Message is the human-readable text.
	Message string `json:"message"`

	// Details carries free-text annotations.
	Details []string `json:"details,omitempty"`

	// Duration is filled on activity end notifications.
	Duration time.Duration `json:"duration,omitempty"`

	// Level is the severity (info, warning, error).
	Level string `json:"level"`
}

// Notification type constants.
const (
	NotifyActivityStart  = "activity.start"
	NotifyActivityEnd    = "activity.end"
	NotifyPlanSubmitted  = "plan.submitted"
	NotifyPlanTerminated = "plan.terminated"
)

// Severity levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Subscriber is a function that handles notifications.
type Subscriber func(Notification)

// Filter determines whether a notification should be delivered.
type Filter func(Notification) bool

// Publisher fans notifications out to subscribers through a buffered queue.
type Publisher struct {
	config      EventsConfig
	buffer      chan Notification
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber Subscriber
	filter     Filter
}

// NewPublisher creates a notification publisher with the given configuration.
// A disabled publisher accepts and drops everything.
func NewPublisher(cfg EventsConfig) *Publisher {
	if !cfg.Enabled {
		return &Publisher{config: cfg}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		config: cfg,
		buffer: make(chan Notification, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(1)
	go p.process()

	return p
}

// Publish queues a notification. It never blocks: when the buffer is full
// the notification is dropped and an error returned for the caller to log.
func (p *Publisher) Publish(n Notification) error {
	if !p.config.Enabled {
		return nil
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	select {
	case p.buffer <- n:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("notification publisher stopped")
	default:
		return fmt.Errorf("notification buffer full, dropped %s", n.Type)
	}
}

// Notify implements activity.Notifier, bridging activity state changes into
// the notification stream.
func (p *Publisher) Notify(u activity.Update) {
	typ := NotifyActivityStart
	if u.Kind == activity.UpdateEnd {
		typ = NotifyActivityEnd
	}
	_ = p.Publish(Notification{
		Type:      typ,
		Component: u.Component,
		Message:   u.Message,
		Details:   u.Details,
		Duration:  u.Duration,
	})
}

// PublishPlanSubmitted reports that a plan's assignments were committed.
func (p *Publisher) PublishPlanSubmitted(planID string, details []string) error {
	return p.Publish(Notification{
		Type:      NotifyPlanSubmitted,
		Component: "engine",
		PlanID:    planID,
		Message:   fmt.Sprintf("plan %s submitted", planID),
		Details:   details,
	})
}

// PublishPlanTerminated reports a plan's terminal outcome.
func (p *Publisher) PublishPlanTerminated(planID, reason string, details []string) error {
	level := LevelInfo
	if reason != "completed" {
		level = LevelError
	}
	return p.Publish(Notification{
		Type:      NotifyPlanTerminated,
		Component: "engine",
		PlanID:    planID,
		Message:   fmt.Sprintf("plan %s terminated: %s", planID, reason),
		Details:   details,
		Level:     level,
	})
}

// Subscribe adds a subscriber with an optional filter.
func (p *Publisher) Subscribe(s Subscriber, filter Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, subscriberEntry{subscriber: s, filter: filter})
}

// process drains the buffer and delivers to subscribers.
func (p *Publisher) process() {
	defer p.wg.Done()

	for {
		select {
		case n := <-p.buffer:
			p.deliver(n)
		case <-p.ctx.Done():
			// Drain what is left before shutting down.
			for {
				select {
				case n := <-p.buffer:
					p.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(n Notification) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, entry := range p.subscribers {
		if entry.filter != nil && !entry.filter(n) {
			continue
		}
		entry.subscriber(n)
	}
}

// Shutdown stops the publisher, draining buffered notifications.
func (p *Publisher) Shutdown(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows the given types.
func FilterByType(types ...string) Filter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	return func(n Notification) bool {
		return typeSet[n.Type]
	}
}

// FilterByPlanID creates a filter that only allows one plan's notifications.
func FilterByPlanID(planID string) Filter {
	return func(n Notification) bool {
		return n.PlanID == planID
	}
}
