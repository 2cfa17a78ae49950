package achievement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
)

// Triggers maps an activity kind to the achievements worth re-checking
// after it, so hooks avoid a full catalog scan on every write.
type Triggers map[activity.EventKind][]string

// DefaultTriggers returns the trigger table for the default catalog.
func DefaultTriggers() Triggers {
	return Triggers{
		activity.EventTaskCompleted: {
			"first_task", "productivo", "maraton", "maestro", "titan", "dios_productividad",
			"tempranero", "velocista", "perfeccionista", "dominguero",
		},
		activity.EventTaskCreated:      {"explorador", "prioritario"},
		activity.EventSubtaskCreated:   {"subdivisor"},
		activity.EventSubtaskCompleted: {"multitarea"},
		activity.EventDailyCheck:       {"consistente", "leyenda", "inmortal"},
	}
}

// For returns the achievement ids for kind. Unknown kinds yield nil.
func (t Triggers) For(kind activity.EventKind) []string {
	ids := t[kind]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// ValidateTriggers rejects trigger entries that reference unknown ids or kinds.
func (c *Catalog) ValidateTriggers(t Triggers) error {
	var problems []string
	for kind, ids := range t {
		if !kind.IsValid() {
			problems = append(problems, fmt.Sprintf("unknown event kind %q", kind))
		}
		for _, id := range ids {
			if _, ok := c.Get(id); !ok {
				problems = append(problems, fmt.Sprintf("%s: unknown achievement %q", kind, id))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("trigger errors:\n  - %s", strings.Join(problems, "\n  - "))
}
