// Package streak implements the day-granularity completion streak: a user
// extends it by completing at least DailyGoal tasks on consecutive local days.
package streak

import (
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

const (
	DefaultDailyGoal = 5
	MinDailyGoal     = 3
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the persisted streak of one user.
// LastStreakDate is a civil date (UTC midnight, see timeutil.CivilDate).
type State struct {
	UserID         string
	CurrentStreak  int
	BestStreak     int
	LastStreakDate *time.Time
	DailyGoal      int
	UpdatedAt      time.Time

	// Version is the optimistic-concurrency token; 0 means never stored.
	Version int64
}

// NewState returns the defaults used on first access.
func NewState(userID string, goal int) State {
	if goal < MinDailyGoal {
		goal = DefaultDailyGoal
	}
	return State{UserID: userID, DailyGoal: goal}
}

// SetDailyGoal changes the goal. Goals below MinDailyGoal are rejected.
func (s *State) SetDailyGoal(goal int) error {
	if goal < MinDailyGoal {
		return shared.ErrDailyGoalTooLow
	}
	s.DailyGoal = goal
	return nil
}

// Equal compares every persisted field except UpdatedAt and Version.
func (s State) Equal(o State) bool {
	if s.UserID != o.UserID || s.CurrentStreak != o.CurrentStreak ||
		s.BestStreak != o.BestStreak || s.DailyGoal != o.DailyGoal {
		return false
	}
	switch {
	case s.LastStreakDate == nil && o.LastStreakDate == nil:
		return true
	case s.LastStreakDate == nil || o.LastStreakDate == nil:
		return false
	}
	return s.LastStreakDate.Equal(*o.LastStreakDate)
}

// Clone returns a deep copy.
func (s State) Clone() State {
	if s.LastStreakDate != nil {
		d := *s.LastStreakDate
		s.LastStreakDate = &d
	}
	return s
}

// daysSinceLast returns the calendar days from LastStreakDate to today, or
// -1 with ok=false when there is no date.
func (s State) daysSinceLast(today time.Time) (int, bool) {
	if s.LastStreakDate == nil {
		return -1, false
	}
	return timeutil.DaysBetween(timeutil.CivilDate(*s.LastStreakDate), timeutil.CivilDate(today), time.UTC), true
}

// AtRisk reports whether the streak is alive but today's goal is still open:
// the last qualifying day was yesterday.
func (s State) AtRisk(today time.Time) bool {
	days, ok := s.daysSinceLast(today)
	return ok && s.CurrentStreak > 0 && days == 1
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Transition names what a daily check did.
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionStarted   Transition = "started"   // 0 -> 1
	TransitionExtended  Transition = "extended"  // n -> n+1
	TransitionRestarted Transition = "restarted" // n -> 1 after a gap, never passing through 0
	TransitionBroken    Transition = "broken"    // n -> 0
)

// Outcome is the result of Check.
type Outcome struct {
	State          State
	PreviousStreak int
	Changed        bool
	Transition     Transition
}

// Check runs the daily transition. today must already be in the user's
// time zone; only its calendar fields are used.
//
// A break is only detected here, on the next check after the missed day.
func Check(s State, today time.Time, completedToday int) Outcome {
	next := s.Clone()
	out := Outcome{PreviousStreak: s.CurrentStreak, Transition: TransitionNone}

	goal := s.DailyGoal
	if goal < MinDailyGoal {
		goal = DefaultDailyGoal
	}

	days, hasLast := s.daysSinceLast(today)
	if hasLast && days < 0 {
		// LastStreakDate in the future (clock skew); treat as today.
		days = 0
	}
	todayDate := timeutil.CivilDate(today)

	switch {
	case completedToday >= goal && (!hasLast || days != 0):
		if hasLast && days == 1 && s.CurrentStreak > 0 {
			next.CurrentStreak = s.CurrentStreak + 1
			out.Transition = TransitionExtended
		} else {
			next.CurrentStreak = 1
			if s.CurrentStreak > 0 {
				out.Transition = TransitionRestarted
			} else {
				out.Transition = TransitionStarted
			}
		}
		next.LastStreakDate = &todayDate

	case completedToday < goal && (!hasLast || days >= 2):
		if s.CurrentStreak > 0 || s.LastStreakDate != nil {
			out.Transition = TransitionBroken
		}
		next.CurrentStreak = 0
		next.LastStreakDate = nil
	}

	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}

	out.State = next
	out.Changed = !next.Equal(s)
	if !out.Changed {
		out.Transition = TransitionNone
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MOTIVATION BANDS
// ══════════════════════════════════════════════════════════════════════════════

// Band is a coarse streak tier used by clients to pick encouragement copy.
type Band string

const (
	BandNone      Band = "0"
	BandStarting  Band = "1-2"
	BandBuilding  Band = "3-6"
	BandStrong    Band = "7-14"
	BandElite     Band = "15-29"
	BandLegendary Band = "30+"
)

// BandFor returns the band for a streak length.
func BandFor(streak int) Band {
	switch {
	case streak <= 0:
		return BandNone
	case streak <= 2:
		return BandStarting
	case streak <= 6:
		return BandBuilding
	case streak <= 14:
		return BandStrong
	case streak <= 29:
		return BandElite
	default:
		return BandLegendary
	}
}
