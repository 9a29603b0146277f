package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/xerolinux/xero-toolkit/internal/config"
	"github.com/xerolinux/xero-toolkit/internal/executor"
	"github.com/xerolinux/xero-toolkit/internal/helper"
	"github.com/xerolinux/xero-toolkit/internal/lua"
	"github.com/xerolinux/xero-toolkit/internal/models"
	"github.com/xerolinux/xero-toolkit/internal/orchestrator"
	"github.com/xerolinux/xero-toolkit/internal/pages"
	"github.com/xerolinux/xero-toolkit/internal/plan"
	"github.com/xerolinux/xero-toolkit/internal/storage"
	"github.com/xerolinux/xero-toolkit/internal/system"
)

var (
	nameStyle = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "xero-toolkit",
		Short:         "XeroLinux system toolkit",
		Long:          "xero-toolkit installs drivers and tools by running command plans with live progress.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDriversCommand())
	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newHelperCommand())
	rootCmd.AddCommand(newCheckCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// env is everything a command needs, built from the config.
type env struct {
	cfg     *config.Config
	store   *storage.Storage
	helpers *helper.Source
	loop    *executor.Loop
	orch    *orchestrator.Orchestrator
	checker *system.Checker
	loader  *plan.Loader

	logFile io.Closer
}

func openEnv() (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logFile, err := cfg.SetupLogging()
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	helpers := helper.New(cfg.AurHelper)
	loop := executor.NewLoop()
	checker := system.NewChecker(helpers)

	e := &env{
		cfg:     cfg,
		store:   store,
		helpers: helpers,
		loop:    loop,
		orch:    orchestrator.New(store, loop, executor.NewResolver(cfg.Escalation, helpers), cfg.WorkspacesDir()),
		checker: checker,
		loader:  plan.NewLoader([]string{cfg.UserPlanDir, cfg.ProjectPlanDir}, lua.NewRuntime(checker)),
		logFile: logFile,
	}

	if _, err := e.orch.Recover(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) Close() {
	e.store.Close()
	e.logFile.Close()
}

// plans merges the built-in plans with the plan files; files win on name.
func (e *env) plans() (map[string]*models.Plan, error) {
	plans := pages.Builtin()
	files, err := e.loader.LoadAll()
	if err != nil {
		return nil, err
	}
	for name, p := range files {
		plans[name] = p
	}
	return plans, nil
}

// findPlan resolves a plan file, a plan name or a built-in.
func (e *env) findPlan(nameOrPath string) (*models.Plan, error) {
	p, err := e.loader.Load(nameOrPath)
	if errors.Is(err, plan.ErrNotFound) {
		if builtin, ok := pages.Builtin()[nameOrPath]; ok {
			return builtin, nil
		}
	}
	return p, err
}

// isTerminal reports whether dialogs and prompts can be shown.
func isTerminal() bool {
	if envTruthy("NO_INTERACTION") || envTruthy("CI") {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func newPlansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List available plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			plans, err := e.plans()
			if err != nil {
				return err
			}

			for _, p := range plan.Sorted(plans) {
				source := "built-in"
				if p.Source != "" {
					source = p.Source
				}
				fmt.Printf("%s  %s\n", nameStyle.Render(p.Name), p.Title)
				if p.Description != "" {
					fmt.Printf("    %s\n", p.Description)
				}
				fmt.Printf("    %s\n", dimStyle.Render(source))
			}
			return nil
		},
	}
}

func newHelperCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "helper",
		Short: "Show the AUR helper and escalation command in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if name, version, ok := e.checker.Distribution(); ok {
				fmt.Printf("System:     %s %s\n", name, version)
			}
			if h, ok := e.helpers.Resolve(); ok {
				fmt.Printf("AUR helper: %s\n", h)
			} else {
				fmt.Printf("AUR helper: %s\n", failStyle.Render("none found (install paru or yay)"))
			}
			fmt.Printf("Escalation: %s\n", e.cfg.Escalation)
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <package>...",
		Short: "Check whether packages are installed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			installed := e.checker.PackagesInstalled(args)
			var missing []string
			for _, pkg := range args {
				if installed[pkg] {
					fmt.Printf("%s %s\n", okStyle.Render("✓"), pkg)
				} else {
					fmt.Printf("%s %s\n", failStyle.Render("✗"), pkg)
					missing = append(missing, pkg)
				}
			}

			if len(missing) > 0 {
				return fmt.Errorf("not installed: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
