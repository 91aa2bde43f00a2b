package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dayplan/backend/internal/config"
	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/ics"
	"dayplan/backend/internal/timezone"
)

type planOptions struct {
	tasksPath string
	output    string
	icsPath   string
	zone      string
	date      string
}

func newPlanCommand() *cobra.Command {
	var opts planOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Organize a task file from the command line",
		Long: `Plan reads tasks from a YAML or JSON file, asks the scheduling model to
organize them, and prints the resulting blocks. With --ics the schedule is
also written as an iCalendar file.

Example tasks file:

  - name: Write report
    est_start: "9am"
    est_duration: 1h 30min
  - name: Gym
    ai_estimate: true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.VerboseLogging)

			tasks, err := readTasks(cmd.InOrStdin(), opts.tasksPath)
			if err != nil {
				return err
			}

			blocks, err := newPlanner(cfg, log).Plan(cmd.Context(), tasks)
			if err != nil {
				return err
			}

			if err := writeBlocks(cmd.OutOrStdout(), blocks, opts.output); err != nil {
				return err
			}

			if opts.icsPath == "" {
				return nil
			}
			zone := zoneFromFlag(opts.zone)
			day, err := dayFromFlag(opts.date, zone)
			if err != nil {
				return err
			}
			body, err := ics.Encode(blocks, zone, day, ics.WithLogger(log))
			if err != nil {
				return err
			}
			return os.WriteFile(opts.icsPath, body, 0o644)
		},
	}

	cmd.Flags().StringVarP(&opts.tasksPath, "tasks", "t", "-", "Tasks file (YAML or JSON); - reads stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "yaml", "Output format: yaml or json")
	cmd.Flags().StringVar(&opts.icsPath, "ics", "", "Also write the schedule as an iCalendar file")
	cmd.Flags().StringVar(&opts.zone, "tz", "UTC", "Time zone for --ics (IANA name or UTC offset)")
	cmd.Flags().StringVar(&opts.date, "date", "", "Day for --ics as YYYY-MM-DD (default today)")
	return cmd
}

func readTasks(stdin io.Reader, path string) ([]domain.Task, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	// JSON is valid YAML, so one decoder covers both formats.
	var tasks []domain.Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	return tasks, nil
}

func writeBlocks(w io.Writer, blocks []domain.ScheduleBlock, format string) error {
	if blocks == nil {
		blocks = []domain.ScheduleBlock{}
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(blocks); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		data, err := sonic.ConfigStd.MarshalIndent(blocks, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

func zoneFromFlag(s string) timezone.Zone {
	if z, err := timezone.Load(s); err == nil {
		return z
	}
	if z, ok := timezone.ParseOffset(s); ok {
		return z
	}
	return timezone.UTC()
}

func dayFromFlag(s string, zone timezone.Zone) (time.Time, error) {
	loc := zone.Loc()
	if strings.TrimSpace(s) == "" {
		y, m, d := time.Now().In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return day, nil
}
