package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something that already happened;
// subscribers must never be able to undo it.
const (
	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Streak events
	EventStreakStarted     EventType = "streak.started"
	EventStreakExtended    EventType = "streak.extended"
	EventStreakRestarted   EventType = "streak.restarted"
	EventStreakBroken      EventType = "streak.broken"
	EventStreakGoalUpdated EventType = "streak.goal_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID is unique per emitted event.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event (the user).
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return NewBaseEventAt(eventType, aggregateID, time.Now())
}

// NewBaseEventAt creates a new base event stamped with at.
func NewBaseEventAt(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted exactly once per (user, achievement),
// on the transition from locked to unlocked.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	Metric        string    `json:"metric"`
	Value         int       `json:"value"`
	Target        int       `json:"target"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"metric":         e.Metric,
		"value":          e.Value,
		"target":         e.Target,
		"unlocked_at":    e.UnlockedAt.Format(time.RFC3339),
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name, metric string, value, target int, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEventAt(EventAchievementUnlocked, userID, unlockedAt),
		UserID:        userID,
		AchievementID: achievementID,
		Name:          name,
		Metric:        metric,
		Value:         value,
		Target:        target,
		UnlockedAt:    unlockedAt.UTC(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted whenever a daily check or goal change
// modifies a user's streak state. Type tells which transition happened.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	CurrentStreak  int    `json:"current_streak"`
	BestStreak     int    `json:"best_streak"`
	DailyGoal      int    `json:"daily_goal"`
	PreviousStreak int    `json:"previous_streak"`
	Day            string `json:"day"` // YYYY-MM-DD in the user's time zone
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"current_streak":  e.CurrentStreak,
		"best_streak":     e.BestStreak,
		"daily_goal":      e.DailyGoal,
		"previous_streak": e.PreviousStreak,
		"day":             e.Day,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(eventType EventType, userID string, previous, current, best, goal int, day string, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEventAt(eventType, userID, at),
		UserID:         userID,
		CurrentStreak:  current,
		BestStreak:     best,
		DailyGoal:      goal,
		PreviousStreak: previous,
		Day:            day,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event's payload into an envelope.
func NewEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          event.EventID(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ baseEvent() BaseEvent }); ok {
		env.Version = b.baseEvent().Version
		env.CorrelationID = b.baseEvent().CorrelationID
	}
	return env, nil
}

func (e BaseEvent) baseEvent() BaseEvent { return e }

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
