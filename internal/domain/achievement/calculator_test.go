package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func snap(tasks ...activity.Task) Inputs {
	return Inputs{Snapshot: activity.NewSnapshot("u-1", tasks, ts("2024-03-11T12:00:00Z"))}
}

func TestCalculate_EmptySnapshotIsZeroForEveryMetric(t *testing.T) {
	in := Inputs{
		Snapshot:          activity.NewSnapshot("u-1", nil, time.Now()),
		PriorityLabels:    map[int64]string{1: "Alta"},
		HighPriorityLabel: "Alta",
	}
	for _, m := range AllMetricTypes() {
		got, err := Calculate(m, in)
		require.NoError(t, err, m.String())
		assert.Zero(t, got, m.String())
	}
}

func TestCalculate_EveryMetricHasACalculator(t *testing.T) {
	for _, m := range AllMetricTypes() {
		assert.NotNil(t, calculators[m], m.String())
	}
}

func TestCalculate_UnknownMetricAndNilSnapshot(t *testing.T) {
	_, err := Calculate(metricTypeCount, snap())
	assert.True(t, shared.IsComputation(err))

	_, err = Calculate(MetricCompletedTasks, Inputs{})
	assert.ErrorIs(t, err, shared.ErrNilSnapshot)

	// Streak needs no snapshot.
	got, err := Calculate(MetricStreak, Inputs{CurrentStreak: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestCalculate_SubtasksCompletedIsMaxNotSum(t *testing.T) {
	in := snap(
		activity.Task{ID: 1, Subtasks: activity.SubtaskCounts{Created: 3, Completed: 3}},
		activity.Task{ID: 2, Subtasks: activity.SubtaskCounts{Created: 9, Completed: 7}},
	)
	got, err := Calculate(MetricSubtasksCompleted, in)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	created, err := Calculate(MetricSubtasksCreated, in)
	require.NoError(t, err)
	assert.Equal(t, 12, created)
}

func TestCalculate_TasksInDayIsBestDay(t *testing.T) {
	var tasks []activity.Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, activity.Task{ID: int64(i), Completed: true, UpdatedAt: ts("2024-01-01T10:00:00Z").Add(time.Duration(i) * time.Hour)})
	}
	for i := 0; i < 5; i++ {
		tasks = append(tasks, activity.Task{ID: int64(10 + i), Completed: true, UpdatedAt: ts("2024-01-02T08:00:00Z").Add(time.Duration(i) * time.Hour)})
	}
	// Incomplete tasks never count, even on the busiest day.
	tasks = append(tasks, activity.Task{ID: 99, UpdatedAt: ts("2024-01-02T09:00:00Z")})

	got, err := Calculate(MetricTasksInDay, snap(tasks...))
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestCalculate_TasksInDaySkipsMissingTimestamp(t *testing.T) {
	got, err := Calculate(MetricTasksInDay, snap(
		activity.Task{ID: 1, Completed: true},
		activity.Task{ID: 2, Completed: true, UpdatedAt: ts("2024-01-02T08:00:00Z")},
		activity.Task{ID: 3, Completed: true, UpdatedAt: ts("2024-01-02T09:00:00Z")},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	got, err = Calculate(MetricTasksInDay, snap(activity.Task{ID: 1, Completed: true}))
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestCalculate_NegativeSubtasksIsComputationError(t *testing.T) {
	_, err := Calculate(MetricSubtasksCreated, snap(activity.Task{Subtasks: activity.SubtaskCounts{Created: -1}}))
	assert.True(t, shared.IsComputation(err))
}

func TestCalculate_CountingMetrics(t *testing.T) {
	in := snap(
		activity.Task{ID: 1, Completed: true, UpdatedAt: ts("2024-03-10T10:00:00Z"), DueDate: tsp("2024-03-10T08:30:00Z"), PriorityID: 1},
		activity.Task{ID: 2, Completed: true, UpdatedAt: ts("2024-03-10T11:00:00Z"), Subtasks: activity.SubtaskCounts{Created: 2, Completed: 2}, PriorityID: 2},
		activity.Task{ID: 3, Completed: false, DueDate: tsp("2024-03-12T07:00:00Z"), PriorityID: 1},
		activity.Task{ID: 4, Completed: false, DueDate: tsp("2024-03-12T15:00:00Z")},
		activity.Task{ID: 5, Completed: false},
	)
	in.PriorityLabels = map[int64]string{1: "Alta", 2: "Media"}
	in.HighPriorityLabel = "Alta"

	cases := []struct {
		metric MetricType
		want   int
	}{
		{MetricCompletedTasks, 2},
		{MetricTasksCreated, 5},
		{MetricHighPriorityTasks, 2},
		{MetricEarlyTasks, 2},
		{MetricSoloTasks, 1},
		{MetricSundayTasks, 1},
	}
	for _, tc := range cases {
		got, err := Calculate(tc.metric, in)
		require.NoError(t, err, tc.metric.String())
		assert.Equal(t, tc.want, got, tc.metric.String())
	}
}

func TestCalculate_LocationShiftsHourAndWeekday(t *testing.T) {
	// 2024-03-10 07:00 UTC is a Sunday early morning in UTC but
	// Saturday 23:00 in UTC-8.
	in := snap(activity.Task{ID: 1, DueDate: tsp("2024-03-10T07:00:00Z")})

	sunday, _ := Calculate(MetricSundayTasks, in)
	early, _ := Calculate(MetricEarlyTasks, in)
	assert.Equal(t, 1, sunday)
	assert.Equal(t, 1, early)

	in.Location = time.FixedZone("UTC-8", -8*3600)
	sunday, _ = Calculate(MetricSundayTasks, in)
	early, _ = Calculate(MetricEarlyTasks, in)
	assert.Zero(t, sunday)
	assert.Zero(t, early)
}

func TestCalculate_HighPriorityWithoutLabelsIsZero(t *testing.T) {
	in := snap(activity.Task{ID: 1, PriorityID: 1})
	in.HighPriorityLabel = "Alta"

	got, err := Calculate(MetricHighPriorityTasks, in)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestCalculate_HighPriorityIsExactLabelMatch(t *testing.T) {
	in := snap(
		activity.Task{ID: 1, PriorityID: 1},
		activity.Task{ID: 2, PriorityID: 2},
		activity.Task{ID: 3, PriorityID: 3},
	)
	in.PriorityLabels = map[int64]string{1: "Alta", 2: "alta", 3: "Alta "}
	in.HighPriorityLabel = "Alta"

	got, err := Calculate(MetricHighPriorityTasks, in)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestMetricType_TextRoundTrip(t *testing.T) {
	m, err := ParseMetricType("sunday_tasks")
	require.NoError(t, err)
	assert.Equal(t, MetricSundayTasks, m)

	var decoded MetricType
	require.NoError(t, decoded.UnmarshalText([]byte("tasks_in_day")))
	assert.Equal(t, MetricTasksInDay, decoded)

	assert.Error(t, decoded.UnmarshalText([]byte("xp")))
	assert.Equal(t, "MetricType(200)", MetricType(200).String())
}
