package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/llm"
)

type fakeCompleter struct {
	completeFn func(ctx context.Context, messages ...llm.Message) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, messages ...llm.Message) (string, error) {
	if f.completeFn == nil {
		panic("Complete not configured")
	}
	return f.completeFn(ctx, messages...)
}

func replying(reply string) *fakeCompleter {
	return &fakeCompleter{completeFn: func(ctx context.Context, messages ...llm.Message) (string, error) {
		return reply, nil
	}}
}

func TestPlannerPlan_SendsTasksAsJSON(t *testing.T) {
	var sent []llm.Message
	p := NewPlanner(&fakeCompleter{completeFn: func(ctx context.Context, messages ...llm.Message) (string, error) {
		sent = messages
		return `[{"type":"task","name":"Write report","start_time":"09:00","duration":60}]`, nil
	}}, nil)

	_, err := p.Plan(context.Background(), []domain.Task{{Name: "Write report", EstimatedStart: "9am"}})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, llm.RoleUser, sent[1].Role)
	assert.Contains(t, sent[1].Content, `"name":"Write report"`)
	assert.Contains(t, sent[1].Content, `"est_start":"9am"`)
}

func TestPlannerPlan_CleansSortsAndFilters(t *testing.T) {
	reply := "```json\n" + `[
  {"type": "task", "name": "Write report", "start_time": "10:00", "duration": 60},
  {"type": "Preparation", "label": "Gather notes", "start_time": "9:45", "duration": "15"},
  {"type": "rest", "start_time": "11:00", "duration": 0},
  {"type": "break", "name": "Walk", "start_time": "11:00", "duration": 10.4},
  {"type": "meeting", "name": "Standup", "start_time": "08:30", "duration": 15},
]` + "\n```"

	blocks, err := NewPlanner(replying(reply), nil).Plan(context.Background(), []domain.Task{{Name: "Write report"}})
	require.NoError(t, err)

	want := []domain.ScheduleBlock{
		{Kind: domain.BlockKindTask, Label: "Standup", Start: "08:30", DurationMinutes: 15},
		{Kind: domain.BlockKindPreparation, Label: "Gather notes", Start: "09:45", DurationMinutes: 15},
		{Kind: domain.BlockKindTask, Label: "Write report", Start: "10:00", DurationMinutes: 60},
		{Kind: domain.BlockKindRest, Label: "Walk", Start: "11:00", DurationMinutes: 10},
	}
	assert.Equal(t, want, blocks)
}

func TestPlannerPlan_NeverReturnsNonPositiveDurations(t *testing.T) {
	reply := `[
  {"type":"task","name":"a","start_time":"09:00","duration":30},
  {"type":"rest","name":"b","start_time":"09:30","duration":0},
  {"type":"prep","name":"c","start_time":"09:30","duration":-5},
  {"type":"rest","name":"d","start_time":"09:30","duration":"0"}
]`
	blocks, err := NewPlanner(replying(reply), nil).Plan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	for _, b := range blocks {
		assert.Greater(t, b.DurationMinutes, 0)
	}
}

func TestParseReply_DropsDurationsLongerThanADay(t *testing.T) {
	reply := `[
  {"type":"task","name":"a","start_time":"09:00","duration":1440},
  {"type":"task","name":"b","start_time":"10:00","duration":1e13},
  {"type":"task","name":"c","start_time":"11:00","duration":"1441"}
]`
	blocks, err := ParseReply(reply)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "a", blocks[0].Label)
	assert.Equal(t, domain.MaxBlockMinutes, blocks[0].DurationMinutes)

	_, err = ParseReply(`[{"type":"task","name":"b","start_time":"10:00","duration":1e13}]`)
	var sErr *SchedulingError
	require.True(t, errors.As(err, &sErr), "error type = %T", err)
	assert.Equal(t, StageValidate, sErr.Stage)
}

func TestPlannerPlan_StableOrderForEqualStarts(t *testing.T) {
	reply := `[
  {"type":"task","name":"first","start_time":"09:00","duration":30},
  {"type":"task","name":"second","start_time":"09:00","duration":30},
  {"type":"task","name":"third","start_time":"09:00","duration":30}
]`
	blocks, err := ParseReply(reply)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "first", blocks[0].Label)
	assert.Equal(t, "second", blocks[1].Label)
	assert.Equal(t, "third", blocks[2].Label)
}

func TestPlannerPlan_DropsSchemaInvalidItems(t *testing.T) {
	reply := `[
  {"type":"task","name":"ok","start_time":"09:00","duration":30},
  {"type":"task","name":"no start","duration":30},
  {"type":"task","name":"bad start","start_time":"morning","duration":30},
  {"type":"task","name":"bad duration","start_time":"10:00","duration":"an hour"},
  "not an object"
]`
	blocks, err := ParseReply(reply)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "ok", blocks[0].Label)
}

func TestPlannerPlan_EmptyArrayIsEmptySchedule(t *testing.T) {
	blocks, err := ParseReply("[]")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestPlannerPlan_Failures(t *testing.T) {
	tests := []struct {
		name  string
		fake  *fakeCompleter
		stage Stage
	}{
		{
			name: "transport error",
			fake: &fakeCompleter{completeFn: func(ctx context.Context, messages ...llm.Message) (string, error) {
				return "", errors.New("connection refused")
			}},
			stage: StageRequest,
		},
		{
			name:  "prose reply",
			fake:  replying("Sorry, I can't schedule that."),
			stage: StageExtractArray,
		},
		{
			name:  "broken json",
			fake:  replying(`[{"type":"task" "name":"x"}]`),
			stage: StageDecode,
		},
		{
			name:  "nothing usable",
			fake:  replying(`[{"type":"task","name":"x","start_time":"09:00","duration":0}]`),
			stage: StageValidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlanner(tt.fake, nil).Plan(context.Background(), []domain.Task{{Name: "x"}})
			var sErr *SchedulingError
			require.True(t, errors.As(err, &sErr), "error type = %T", err)
			assert.Equal(t, tt.stage, sErr.Stage)
		})
	}
}

func TestSchedulingErrorDiagnostic_Truncates(t *testing.T) {
	e := &SchedulingError{Stage: StageDecode, Raw: strings.Repeat("x", 1000)}
	assert.Len(t, e.Diagnostic(), 303)
}
