package timezone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dayplan/backend/internal/llm"
)

const zoneInstructions = "Reply with exactly one IANA time zone identifier (for example Europe/Bucharest or America/New_York) " +
	"for the place or description in the user message. Reply with the identifier only, no other words."

// ResolutionError means the zone lookup failed or answered with something
// that is not a valid zone. The zone in the accompanying Result is still
// usable as a fallback.
type ResolutionError struct {
	Input  string
	Answer string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Answer != "" {
		return fmt.Sprintf("resolve time zone for %q: answer %q: %v", e.Input, e.Answer, e.Err)
	}
	return fmt.Sprintf("resolve time zone for %q: %v", e.Input, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type Result struct {
	Zone Zone
	// Warning is set whenever the zone is not the one the client detected,
	// so the user can be told their times may be off.
	Warning    string
	FromLookup bool
}

type completer interface {
	Complete(ctx context.Context, messages ...llm.Message) (string, error)
}

type Resolver struct {
	llm completer
	log *slog.Logger
}

// NewResolver builds a Resolver. c may be nil, in which case free-text
// lookups are not attempted.
func NewResolver(c completer, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		llm: c,
		log: log.With(slog.String("component", "timezone")),
	}
}

// Resolve picks the zone for a session. A valid IANA hint from the client
// wins outright. Otherwise the result carries a warning and a best-effort
// fallback (a parsed UTC offset, else UTC); when freeText is given the zone
// lookup is asked and its answer validated before use. A failed lookup
// returns the fallback result together with *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, hint, freeText string) (Result, error) {
	hint = strings.TrimSpace(hint)
	freeText = strings.TrimSpace(freeText)

	if z, err := Load(hint); err == nil {
		return Result{Zone: z}, nil
	}

	fallback := Result{Zone: UTC(), Warning: "Could not detect your time zone; calendar times are in UTC and may be off."}
	if hint != "" {
		fallback.Warning = fmt.Sprintf("%q is not a recognised time zone; calendar times are in UTC and may be off.", hint)
	}
	for _, candidate := range []string{hint, freeText} {
		if z, ok := ParseOffset(candidate); ok {
			fallback.Zone = z
			if z.IsUTC() {
				fallback.Warning = "Calendar times are in UTC."
			} else {
				fallback.Warning = fmt.Sprintf("Using fixed offset %s; daylight saving changes will not be reflected.", z.Name)
			}
			break
		}
	}

	if freeText == "" || r.llm == nil {
		r.log.Info("time zone fallback", slog.String("hint", hint), slog.String("zone", fallback.Zone.Name))
		return fallback, nil
	}

	answer, err := r.llm.Complete(ctx,
		llm.Message{Role: llm.RoleSystem, Content: zoneInstructions},
		llm.Message{Role: llm.RoleUser, Content: freeText},
	)
	if err != nil {
		r.log.Warn("time zone lookup failed", slog.Any("err", err))
		return fallback, &ResolutionError{Input: freeText, Err: err}
	}

	name, ok := pickZoneName(answer)
	if !ok {
		r.log.Warn("time zone lookup answered with an invalid zone", slog.String("answer", answer))
		return fallback, &ResolutionError{Input: freeText, Answer: strings.TrimSpace(answer), Err: ErrUnknownZone}
	}
	z, _ := Load(name)

	r.log.Info("time zone resolved", slog.String("zone", z.Name), slog.String("source", "lookup"))
	return Result{Zone: z, FromLookup: true}, nil
}

// pickZoneName finds the first valid zone identifier in a model answer,
// tolerating code fences, quotes and surrounding words.
func pickZoneName(answer string) (string, bool) {
	for _, field := range strings.Fields(answer) {
		tok := strings.Trim(field, "`'\".,;:()[]{}*")
		if tok == "" || strings.EqualFold(tok, "json") {
			continue
		}
		if !strings.Contains(tok, "/") && tok != "UTC" {
			continue
		}
		if Valid(tok) {
			return tok, true
		}
	}
	return "", false
}
