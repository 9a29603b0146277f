package main

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/xerolinux/xero-toolkit/internal/tui"
)

func parseRunID(arg string) (int64, error) {
	runID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run ID: %w", err)
	}
	return runID, nil
}

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if isTerminal() && !plain {
				p := tea.NewProgram(tui.NewApp(e.orch), tea.WithAltScreen())
				_, err := p.Run()
				return err
			}

			runs, err := e.orch.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}
			for _, run := range runs {
				fmt.Println(tui.FormatRunLine(run))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the list instead of opening the browser")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := e.orch.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			fmt.Printf("Run #%d: %s\n", run.ID, run.Title)
			fmt.Printf("Plan:    %s\n", run.PlanName)
			fmt.Printf("Status:  %s\n", tui.FormatStatus(run.Status))
			fmt.Printf("Session: %s\n", run.SessionID)
			fmt.Printf("Started: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			if run.CompletedAt != nil {
				fmt.Printf("Ended:   %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			if run.Message != "" {
				fmt.Printf("Result:  %s\n", run.Message)
			}

			execs, err := e.orch.GetExecutionsForRun(runID)
			if err != nil {
				return err
			}

			fmt.Printf("\nSteps (%d of %d started):\n", len(execs), run.TotalSteps)
			for _, exec := range execs {
				fmt.Println("  " + tui.FormatExecutionLine(exec))
			}
			return nil
		},
	}
}

func newLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log <run-id>",
		Short: "Print the output of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			output, err := e.orch.ReadLog(runID)
			if err != nil {
				return fmt.Errorf("failed to read output: %w", err)
			}
			fmt.Print(output)
			return nil
		},
	}
}

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <run-id>",
		Short: "Kill a run started by another invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.orch.KillRun(runID); err != nil {
				return fmt.Errorf("failed to kill run: %w", err)
			}

			fmt.Printf("Killed run #%d\n", runID)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.orch.DeleteRun(runID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Printf("Deleted run #%d\n", runID)
			return nil
		},
	}
}
