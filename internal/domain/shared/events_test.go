package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAchievementUnlockedEvent(t *testing.T) {
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	e := NewAchievementUnlockedEvent("u-1", "first_task", "Primer Paso", "tasks_completed", 1, 1, at)

	assert.Equal(t, EventAchievementUnlocked, e.EventType())
	assert.Equal(t, "u-1", e.AggregateID())
	assert.Equal(t, at, e.OccurredAt())
	assert.NotEmpty(t, e.EventID())
	assert.Equal(t, "first_task", e.Payload()["achievement_id"])
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewBaseEvent(EventStreakStarted, "u-1")
	b := NewBaseEvent(EventStreakStarted, "u-1")
	assert.NotEqual(t, a.EventID(), b.EventID())
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	e := NewStreakUpdatedEvent(EventStreakExtended, "u-9", 2, 3, 5, 5, "2024-03-10", at)
	e.BaseEvent = e.BaseEvent.WithCorrelationID("req-7")

	env, err := NewEnvelope(e)
	require.NoError(t, err)
	assert.Equal(t, e.EventID(), env.ID)
	assert.Equal(t, EventStreakExtended, env.Type)
	assert.Equal(t, "req-7", env.CorrelationID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.EqualValues(t, 3, payload["current_streak"])
	assert.Equal(t, "2024-03-10", payload["day"])
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  user-42 ")
	require.NoError(t, err)
	assert.Equal(t, UserID("user-42"), id)

	_, err = NewUserID("   ")
	assert.True(t, IsValidationInput(err))

	_, err = NewUserID("has space")
	assert.True(t, IsValidationInput(err))
}
