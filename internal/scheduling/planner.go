// Package scheduling asks the scheduling model to arrange tasks into a day
// and turns its free-form reply into ordered schedule blocks.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/llm"
)

var instructions = strings.Join([]string{
	"You organize a user's tasks for one day into a complete calendar.",
	"The user message is a JSON array of tasks with name, prep_time, est_start, est_duration and ai_estimate fields.",
	"Output one entry per block of the day with: type (prep, task or rest), name, start_time (HH:MM, 24h clock) and duration (whole minutes).",
	"Put a preparation block before a task and a rest block after it when they are useful, estimating their length yourself when ai_estimate is true or no prep_time is given.",
	"Honour est_start where possible while keeping the whole day efficient; push less important work later when blocks would overlap.",
	"Convert natural-language times and durations such as 'half an hour', '8 in the morning' or '1h 30min' into HH:MM or minutes.",
	"Never output a block whose duration is 0.",
	"Reply with only a JSON array of blocks in chronological order, without explanations or markdown.",
}, "\n")

type completer interface {
	Complete(ctx context.Context, messages ...llm.Message) (string, error)
}

type Planner struct {
	llm     completer
	log     *slog.Logger
	verbose bool
}

type Option func(*Planner)

// WithVerbose logs the outgoing tasks and the raw model reply at debug level.
func WithVerbose(v bool) Option {
	return func(p *Planner) { p.verbose = v }
}

func NewPlanner(c completer, log *slog.Logger, opts ...Option) *Planner {
	if log == nil {
		log = slog.Default()
	}
	p := &Planner{
		llm: c,
		log: log.With(slog.String("component", "scheduling")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan sends tasks to the model once and returns the cleaned schedule. Every
// returned block has a positive duration and blocks are ordered by start
// time. A failed request or an unusable reply yields *SchedulingError; the
// caller decides whether to try again.
func (p *Planner) Plan(ctx context.Context, tasks []domain.Task) ([]domain.ScheduleBlock, error) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	payload, err := sonic.MarshalString(tasks)
	if err != nil {
		return nil, &SchedulingError{Stage: StageRequest, Err: fmt.Errorf("encode tasks: %w", err)}
	}
	if p.verbose {
		p.log.Debug("planning request", slog.Int("tasks", len(tasks)), slog.String("payload", payload))
	}

	raw, err := p.llm.Complete(ctx,
		llm.Message{Role: llm.RoleSystem, Content: instructions},
		llm.Message{Role: llm.RoleUser, Content: payload},
	)
	if err != nil {
		p.log.Warn("planning request failed", slog.Any("err", err))
		return nil, &SchedulingError{Stage: StageRequest, Err: err}
	}
	if p.verbose {
		p.log.Debug("planning reply", slog.String("raw", raw))
	}

	blocks, err := p.parse(raw)
	if err != nil {
		var sErr *SchedulingError
		if errors.As(err, &sErr) {
			p.log.Warn("planning reply rejected", slog.String("stage", string(sErr.Stage)), slog.Any("err", sErr.Err))
		}
		return nil, err
	}

	p.log.Info("schedule planned", slog.Int("tasks", len(tasks)), slog.Int("blocks", len(blocks)))
	return blocks, nil
}

// ParseReply runs the normalisation and validation pipeline over a reply
// without calling the model.
func ParseReply(raw string) ([]domain.ScheduleBlock, error) {
	return NewPlanner(nil, slog.New(slog.DiscardHandler)).parse(raw)
}

func (p *Planner) parse(raw string) ([]domain.ScheduleBlock, error) {
	cleaned, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	var items []any
	if err := sonic.UnmarshalString(cleaned, &items); err != nil {
		return nil, &SchedulingError{Stage: StageDecode, Raw: raw, Err: err}
	}

	blocks := make([]domain.ScheduleBlock, 0, len(items))
	for i, item := range items {
		if err := validateItem(item); err != nil {
			p.log.Info("dropping invalid block", slog.Int("index", i), slog.Any("err", err))
			continue
		}
		b, ok := toBlock(item.(map[string]any))
		if !ok {
			p.log.Info("dropping invalid block", slog.Int("index", i), slog.String("reason", "duration"))
			continue
		}
		if b.DurationMinutes <= 0 {
			p.log.Debug("dropping empty block", slog.Int("index", i), slog.String("label", b.Label))
			continue
		}
		blocks = append(blocks, b)
	}

	if len(items) > 0 && len(blocks) == 0 {
		return nil, &SchedulingError{Stage: StageValidate, Raw: raw, Err: errors.New("reply contained no usable blocks")}
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].StartMinutes() < blocks[j].StartMinutes()
	})
	return blocks, nil
}

func toBlock(m map[string]any) (domain.ScheduleBlock, bool) {
	minutes, ok := durationMinutes(m["duration"])
	if !ok {
		return domain.ScheduleBlock{}, false
	}

	kind := domain.ParseBlockKind(stringField(m, "type"))
	label := stringField(m, "name")
	if label == "" {
		label = stringField(m, "label")
	}
	if label == "" {
		label = kind.Label()
	}

	h, mm, err := domain.ParseClock(stringField(m, "start_time"))
	if err != nil {
		return domain.ScheduleBlock{}, false
	}

	return domain.ScheduleBlock{
		Kind:            kind,
		Label:           label,
		Start:           fmt.Sprintf("%02d:%02d", h, mm),
		DurationMinutes: minutes,
	}, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func durationMinutes(v any) (int, bool) {
	var f float64
	switch d := v.(type) {
	case float64:
		f = d
	case int64:
		f = float64(d)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > domain.MaxBlockMinutes {
		return 0, false
	}
	return int(math.Round(f)), true
}
