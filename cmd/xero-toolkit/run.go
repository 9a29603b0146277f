package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/xerolinux/xero-toolkit/internal/executor"
	"github.com/xerolinux/xero-toolkit/internal/models"
	"github.com/xerolinux/xero-toolkit/internal/pages"
	"github.com/xerolinux/xero-toolkit/internal/tui"
)

// finishTimeout bounds how long a closed progress dialog waits for the
// cancelled run to be recorded.
const finishTimeout = 10 * time.Second

var errRunFailed = errors.New("operation did not complete")

type runOptions struct {
	yes   bool
	plain bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Skip the confirmation for privileged plans")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "Print output instead of showing the progress dialog")
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <plan>",
		Short: "Run a plan by name or file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.findPlan(args[0])
			if err != nil {
				return err
			}
			return e.execute(cmd.Context(), p, opts)
		},
	}

	opts.bind(cmd)
	return cmd
}

func newDriversCommand() *cobra.Command {
	var (
		opts     runOptions
		selected []string
	)

	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "Install GPU drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(selected) == 0 {
				if !isTerminal() {
					return fmt.Errorf("no drivers selected, pass --select")
				}
				var err error
				if selected, err = promptDrivers(); err != nil {
					return err
				}
			}
			if len(selected) == 0 {
				fmt.Println("Nothing selected.")
				return nil
			}

			p, err := pages.GPUDriverPlan(selected)
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			return e.execute(cmd.Context(), p, opts)
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringSliceVar(&selected, "select", nil, "Driver options to install: nvidia_closed, nvidia_open, cuda")
	return cmd
}

func promptDrivers() ([]string, error) {
	options := make([]huh.Option[string], len(pages.GPUDriverOptions))
	for i, opt := range pages.GPUDriverOptions {
		options[i] = huh.NewOption(opt.Label+" - "+opt.Description, opt.Key)
	}

	var selected []string
	field := huh.NewMultiSelect[string]().
		Title("GPU Drivers").
		Description("Select the drivers to install").
		Options(options...).
		Value(&selected).
		Validate(func(keys []string) error {
			_, err := pages.GPUDriverSteps(keys)
			return err
		})

	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	return selected, nil
}

func confirmPrivileged(p *models.Plan, escalation string) (bool, error) {
	confirmed := false
	field := huh.NewConfirm().
		Title(p.Title).
		Description(fmt.Sprintf("%d steps, some run as root through %s. Continue?", len(p.Steps), escalation)).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// execute runs p to completion on the progress dialog, or on stdout when the
// terminal is not interactive.
func (e *env) execute(ctx context.Context, p *models.Plan, opts runOptions) error {
	interactive := isTerminal()

	if !e.checker.IsXeroLinux() {
		fmt.Fprintln(os.Stderr, dimStyle.Render("Warning: this system is not XeroLinux; some steps may not apply."))
	}

	if p.NeedsPrivileges() && !opts.yes {
		if !interactive {
			return fmt.Errorf("plan %q needs root privileges, pass --yes to run it non-interactively", p.Name)
		}
		ok, err := confirmPrivileged(p, e.cfg.Escalation)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var (
		record *models.Run
		err    error
	)
	if interactive && !opts.plain {
		record, err = e.executeDialog(ctx, p)
	} else {
		record, err = e.executePlain(ctx, p)
	}
	if err != nil {
		return err
	}

	// Reload: the record returned by Start is the state at launch.
	if final, err := e.orch.GetRun(record.ID); err == nil {
		record = final
	}
	if err := outcomeError(record); err != nil {
		return err
	}
	fmt.Println(okStyle.Render("✓ " + record.Message))
	return nil
}

// outcomeError maps a finished run to the command's error. A run the user
// stopped wraps executor.ErrCancelled.
func outcomeError(record *models.Run) error {
	switch record.Status {
	case models.RunStatusComplete:
		return nil
	case models.RunStatusCancelled:
		return fmt.Errorf("%w (run #%d)", executor.ErrCancelled, record.ID)
	default:
		return fmt.Errorf("%w: %s (run #%d, see 'xero-toolkit log %d')", errRunFailed, record.Message, record.ID, record.ID)
	}
}

func (e *env) executeDialog(ctx context.Context, p *models.Plan) (*models.Run, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := tui.NewProgress(p, e.orch)
	record, err := e.orch.Start(p, progress, nil)
	if err != nil {
		return nil, err
	}

	if _, err := tui.RunProgram(ctx, e.loop, progress, tea.WithAltScreen()); err != nil {
		// The dialog is gone; release the run the same way a dismiss does.
		e.orch.Dismiss()
		e.finish(record)
		return nil, fmt.Errorf("progress dialog failed: %w", err)
	}

	// A dismissed run keeps running on the forwarding goroutine until its
	// process is reaped and the result recorded.
	e.finish(record)
	return record, nil
}

func (e *env) finish(record *models.Run) {
	waitCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := e.orch.Wait(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Run #%d is still finishing in the background.\n", record.ID)
	}
}

func (e *env) executePlain(ctx context.Context, p *models.Plan) (*models.Run, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		e.loop.Run(loopCtx)
		close(loopDone)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	surface := tui.NewPlainSurface(os.Stdout, p)
	fmt.Println(nameStyle.Render(p.Title))

	record, err := e.orch.Start(p, surface, nil)
	if err != nil {
		return nil, err
	}

	finished := make(chan struct{})
	go func() {
		e.orch.Wait(context.Background())
		close(finished)
	}()

	select {
	case <-finished:
	case <-sigCtx.Done():
		e.orch.Cancel()
		<-finished
	}
	return record, nil
}
