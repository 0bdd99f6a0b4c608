// Package main is the entry point for the cadence CLI: an operational shell
// around the behavioral pattern-mining and consolidation engine. The engine
// itself is a library; this binary exists to run the consolidation service,
// trigger one-shot runs, and inspect what has been learned.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/cadence/internal/activity"
	"github.com/normanking/cadence/internal/config"
	"github.com/normanking/cadence/internal/consolidate"
	"github.com/normanking/cadence/internal/knowledge"
	"github.com/normanking/cadence/internal/logging"
	"github.com/normanking/cadence/internal/patterns"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
)

type engine struct {
	tracker      *activity.Tracker
	consolidator *consolidate.Consolidator
	close        func()
}

// buildEngine wires stores and the consolidator from config. The semantic
// and episodic collaborators are external systems; the CLI runs with empty
// in-memory stands-ins, so profile content from those sources stays empty
// unless the engine is embedded programmatically.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	semantic := knowledge.NewMemorySemanticStore()
	episodic := knowledge.NewMemoryEpisodicStore()

	var store activity.Store
	closeFn := func() {}
	switch strings.ToLower(cfg.Storage.Backend) {
	case "sqlite":
		db, sqliteStore, err := activity.OpenSQLite(ctx, "sqlite3", cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
		closeFn = func() { db.Close() }
	default:
		jsonStore, err := activity.NewJSONStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		store = jsonStore
	}

	tracker, err := activity.NewTracker(ctx, store, activity.WithPreferenceSink(semantic))
	if err != nil {
		closeFn()
		return nil, err
	}

	recognizer := patterns.NewRecognizer(tracker, episodic,
		patterns.WithMinFrequency(cfg.Patterns.MinFrequency))
	profileStore, err := consolidate.NewJSONProfileStore(cfg.Storage.DataDir)
	if err != nil {
		closeFn()
		return nil, err
	}
	consolidator, err := consolidate.NewConsolidator(
		cfg.Consolidation.ToConsolidateConfig(),
		recognizer, semantic, episodic, tracker, profileStore,
	)
	if err != nil {
		closeFn()
		return nil, err
	}

	return &engine{tracker: tracker, consolidator: consolidator, close: closeFn}, nil
}

func main() {
	var configPath string
	var cfg *config.Config
	var logCloser io.Closer

	root := &cobra.Command{
		Use:   "cadence",
		Short: "Behavioral pattern mining and long-term profile consolidation",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFromPath(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			logCloser, err = logging.Setup(cfg.Logging.Level, cfg.Logging.File)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.cadence/config.yaml)")

	root.AddCommand(serveCmd(&cfg))
	root.AddCommand(consolidateCmd(&cfg))
	root.AddCommand(reportCmd(&cfg))
	root.AddCommand(cleanupCmd(&cfg))
	root.AddCommand(statsCmd(&cfg))
	root.AddCommand(trackCmd(&cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic consolidation service until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := buildEngine(ctx, *cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			eng.consolidator.Start()
			defer eng.consolidator.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			zlog.Info().Msg("shutting down")
			return nil
		},
	}
}

func consolidateCmd(cfg **config.Config) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation pass (all users, or --user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := buildEngine(ctx, *cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			if userID != "" {
				profile, err := eng.consolidator.ConsolidateUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(profile)
			}
			profiles := eng.consolidator.ConsolidateAll(ctx)
			fmt.Printf("consolidated %d user(s)\n", len(profiles))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "consolidate a single user")
	return cmd
}

func reportCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "report <user>",
		Short: "Show long-term insights for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			insights := eng.consolidator.Insights(args[0])
			if insights == nil {
				fmt.Printf("no consolidated profile for %s; run `cadence consolidate --user %s` first\n", args[0], args[0])
				return nil
			}

			fmt.Println(titleStyle.Render("Productivity"))
			if habit := insights.Productivity.MostConsistentHabit; habit != nil {
				printField("most consistent habit", fmt.Sprintf("%s (%.0f%% confidence, %s)",
					habit.HabitName, habit.Confidence*100, habit.TimeOfDay))
			}
			if insights.Productivity.PreferredWorkingTime != "" {
				printField("preferred working time", string(insights.Productivity.PreferredWorkingTime))
			}
			if task := insights.Productivity.MostFrequentTask; task != nil {
				printField("most frequent task", fmt.Sprintf("%s (%dx, %s)",
					task.TaskName, task.Frequency, task.SchedulePattern))
			}
			if insights.Productivity.AverageTaskIntervalDays > 0 {
				printField("average task interval", fmt.Sprintf("%.1f days", insights.Productivity.AverageTaskIntervalDays))
			}

			fmt.Println(titleStyle.Render("Goals"))
			printField("tracked", fmt.Sprintf("%d (avg confidence %.2f)",
				insights.Goals.TrackedGoals, insights.Goals.AverageConfidence))

			fmt.Println(titleStyle.Render("Skills"))
			printField("tracked", fmt.Sprintf("%d (avg confidence %.2f)",
				insights.Skills.TrackedSkills, insights.Skills.AverageConfidence))
			for _, skill := range insights.Skills.TopSkills {
				printField("  "+skill.Skill, fmt.Sprintf("%.2f", skill.Confidence))
			}
			return nil
		},
	}
}

func cleanupCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune raw history past retention, keeping pattern evidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			pruned, err := eng.consolidator.CleanupOldMemories(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d record(s)\n", pruned)
			return nil
		},
	}
}

func statsCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user>",
		Short: "Show activity statistics for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer eng.close()
			return printJSON(eng.tracker.Statistics(args[0]))
		},
	}
}

func trackCmd(cfg **config.Config) *cobra.Command {
	var duration float64
	var failed bool
	var project, goal string
	cmd := &cobra.Command{
		Use:   "track <user> <activity-type> <description>",
		Short: "Log an activity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			opts := []activity.LogOption{}
			if duration > 0 {
				opts = append(opts, activity.WithDuration(duration))
			}
			if failed {
				opts = append(opts, activity.WithSuccess(false))
			}
			actCtx := map[string]string{}
			if project != "" {
				actCtx["project_context"] = project
			}
			if goal != "" {
				actCtx["goal_type"] = goal
			}
			if len(actCtx) > 0 {
				opts = append(opts, activity.WithContext(actCtx))
			}

			rec, err := eng.tracker.LogActivity(cmd.Context(), args[0], args[1], args[2], opts...)
			if err != nil {
				return err
			}
			fmt.Println(rec.ActivityID)
			return nil
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 0, "duration in seconds")
	cmd.Flags().BoolVar(&failed, "failed", false, "mark the activity as failed")
	cmd.Flags().StringVar(&project, "project", "", "project context")
	cmd.Flags().StringVar(&goal, "goal", "", "goal type")
	return cmd
}

func printField(label, value string) {
	fmt.Printf("  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
