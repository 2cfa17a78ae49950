// Package achievement contains the achievement catalog, the per-metric
// progress calculators and the monotonic progress model.
package achievement

import (
	"fmt"
)

// MetricType selects the calculator that measures progress for an achievement.
type MetricType uint8

const (
	MetricCompletedTasks MetricType = iota
	MetricHighPriorityTasks
	MetricSubtasksCreated
	MetricTasksCreated
	MetricStreak
	MetricEarlyTasks
	MetricSubtasksCompleted
	MetricTasksInDay
	MetricSoloTasks
	MetricSundayTasks

	metricTypeCount
)

var metricNames = [...]string{
	MetricCompletedTasks:    "completed_tasks",
	MetricHighPriorityTasks: "high_priority_tasks",
	MetricSubtasksCreated:   "subtasks_created",
	MetricTasksCreated:      "tasks_created",
	MetricStreak:            "streak",
	MetricEarlyTasks:        "early_tasks",
	MetricSubtasksCompleted: "subtasks_completed",
	MetricTasksInDay:        "tasks_in_day",
	MetricSoloTasks:         "solo_tasks",
	MetricSundayTasks:       "sunday_tasks",
}

// Both tables must cover every metric: these fail to compile otherwise.
const (
	_ = uint(len(metricNames) - int(metricTypeCount))
	_ = uint(int(metricTypeCount) - len(metricNames))
)

// AllMetricTypes returns every metric in declaration order.
func AllMetricTypes() []MetricType {
	out := make([]MetricType, 0, metricTypeCount)
	for m := MetricType(0); m < metricTypeCount; m++ {
		out = append(out, m)
	}
	return out
}

// IsValid checks the value is a declared metric.
func (m MetricType) IsValid() bool {
	return m < metricTypeCount
}

// String returns the wire name, e.g. "completed_tasks".
func (m MetricType) String() string {
	if !m.IsValid() {
		return fmt.Sprintf("MetricType(%d)", uint8(m))
	}
	return metricNames[m]
}

// ParseMetricType resolves a wire name.
func ParseMetricType(s string) (MetricType, error) {
	for i, name := range metricNames {
		if name == s {
			return MetricType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metric type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m MetricType) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid metric type %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MetricType) UnmarshalText(text []byte) error {
	parsed, err := ParseMetricType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
