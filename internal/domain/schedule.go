package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task is one user-supplied item the planner arranges into the day.
type Task struct {
	Name              string `json:"name" yaml:"name"`
	PrepTime          string `json:"prep_time,omitempty" yaml:"prep_time,omitempty"`
	EstimatedStart    string `json:"est_start,omitempty" yaml:"est_start,omitempty"`
	EstimatedDuration string `json:"est_duration,omitempty" yaml:"est_duration,omitempty"`
	EstimatePrep      bool   `json:"ai_estimate,omitempty" yaml:"ai_estimate,omitempty"`
}

type BlockKind string

const (
	BlockKindPreparation BlockKind = "prep"
	BlockKindTask        BlockKind = "task"
	BlockKindRest        BlockKind = "rest"
)

// Label is the capitalized word used in event summaries.
func (k BlockKind) Label() string {
	switch k {
	case BlockKindPreparation:
		return "Prep"
	case BlockKindRest:
		return "Rest"
	default:
		return "Task"
	}
}

// ParseBlockKind maps the kind words the planner and calendar readers use
// onto a BlockKind. Anything unrecognised is a task.
func ParseBlockKind(s string) BlockKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prep", "preparation":
		return BlockKindPreparation
	case "rest", "break":
		return BlockKindRest
	default:
		return BlockKindTask
	}
}

// ScheduleBlock is one contiguous slot of the planned day. Start is the
// time of day as produced by the planner ("HH:MM"); it is parsed lazily so
// a malformed value only drops its own block when encoding.
type ScheduleBlock struct {
	Kind            BlockKind `json:"type" yaml:"type"`
	Label           string    `json:"name" yaml:"name"`
	Start           string    `json:"start_time" yaml:"start_time"`
	DurationMinutes int       `json:"duration" yaml:"duration"`
}

// Clock returns the block start as hour and minute.
func (b ScheduleBlock) Clock() (hour, minute int, err error) {
	return ParseClock(b.Start)
}

// StartMinutes is the start as minutes after midnight, or -1 when it does
// not parse.
func (b ScheduleBlock) StartMinutes() int {
	h, m, err := b.Clock()
	if err != nil {
		return -1
	}
	return h*60 + m
}

// MaxBlockMinutes caps a single block at one day.
const MaxBlockMinutes = 24 * 60

// CheckDuration reports whether the block has a usable length: at least one
// minute and at most MaxBlockMinutes.
func (b ScheduleBlock) CheckDuration() error {
	if b.DurationMinutes <= 0 || b.DurationMinutes > MaxBlockMinutes {
		return fmt.Errorf("duration %d is outside 1..%d minutes", b.DurationMinutes, MaxBlockMinutes)
	}
	return nil
}

// On places the block on the given calendar day in loc. A start that falls
// in a daylight saving gap comes back shifted by time.Date.
func (b ScheduleBlock) On(day time.Time, loc *time.Location) (start, end time.Time, err error) {
	h, m, err := b.Clock()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := b.CheckDuration(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, mo, d := day.Date()
	start = time.Date(y, mo, d, h, m, 0, 0, loc)
	end = start.Add(time.Duration(b.DurationMinutes) * time.Minute)
	return start, end, nil
}

// ParseClock accepts "H:MM", "HH:MM" and "HH:MM:SS".
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
