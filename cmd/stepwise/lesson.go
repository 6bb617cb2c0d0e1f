package main

import (
	"fmt"

	"github.com/aretw0/stepwise"
	"github.com/aretw0/stepwise/internal/cli"
	"github.com/aretw0/stepwise/internal/presentation/graph"
	"github.com/aretw0/stepwise/internal/presentation/tui"
	"github.com/aretw0/stepwise/internal/validator"
	"github.com/spf13/cobra"
)

var lessonCmd = &cobra.Command{
	Use:   "lesson",
	Short: "Inspect the lessons of a repository",
}

var lessonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available lessons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openLessons(cmd)
		if err != nil {
			return err
		}
		ids, err := engine.Lessons(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range ids {
			lesson, err := engine.Inspect(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "%s\t(error: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "%s\t%d steps\t%s\n", id, len(lesson.Steps), lesson.Title)
		}
		return nil
	},
}

var lessonShowCmd = &cobra.Command{
	Use:   "show <lesson-id>",
	Short: "Render a lesson with its steps and checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openLessons(cmd)
		if err != nil {
			return err
		}
		lesson, err := engine.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		render := tui.NewRenderer()
		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			render = tui.Plain
		}
		out, err := render(tui.LessonMarkdown(lesson))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var lessonValidateCmd = &cobra.Command{
	Use:   "validate [lesson-id]",
	Short: "Check lessons for consistency",
	Long:  `Loads every lesson (or only the given one) and reports duplicate IDs, broken patterns and checkpoints that run missing files.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openLessons(cmd)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			lesson, err := engine.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := validator.ValidateLesson(lesson); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
		} else if err := validator.ValidateAll(cmd.Context(), engine.Loader()); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		cli.PrintSystemMessage(cmd.OutOrStdout(), "Lessons are valid!")
		return nil
	},
}

var lessonGraphCmd = &cobra.Command{
	Use:   "graph <lesson-id>",
	Short: "Export the lesson as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the lesson steps and their checkpoints.
With --session, the learner's stored progress is highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			engine, err := openLessons(cmd)
			if err != nil {
				return err
			}
			lesson, err := engine.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(lesson, nil))
			return nil
		}

		// Progress lives in the configured store, so the full app is needed.
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closer, err := cli.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()
		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close(cmd.Context())

		lesson, err := app.Engine.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		progress, err := app.Engine.Manager().Load(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		if progress.LessonID != lesson.ID {
			return fmt.Errorf("session %s is on lesson %s, not %s", sessionID, progress.LessonID, lesson.ID)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(lesson, graph.OverlayFrom(progress)))
		return nil
	},
}

// openLessons builds an engine that only reads lessons; no store, sandbox
// or remote service is contacted.
func openLessons(cmd *cobra.Command) (*stepwise.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, _, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return stepwise.New(cfg.Lessons.Dir,
		stepwise.WithFilesDir(cfg.Lessons.FilesDir),
		stepwise.WithLogger(logger),
	)
}

func init() {
	rootCmd.AddCommand(lessonCmd)
	lessonCmd.AddCommand(lessonListCmd, lessonShowCmd, lessonValidateCmd, lessonGraphCmd)
	lessonShowCmd.Flags().Bool("plain", false, "Print raw markdown instead of styled output")
	lessonGraphCmd.Flags().String("session", "", "Highlight the stored progress of this session")
}
