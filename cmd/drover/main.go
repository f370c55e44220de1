// Command drover drives projects through declarative multi-phase
// protocols: automated checks, parallel reviewer consultation, human
// approval gates, durable file-backed state.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/engine"
	"github.com/oxbowlake/drover/internal/journal"
	"github.com/oxbowlake/drover/internal/orchestrator"
	"github.com/oxbowlake/drover/internal/server"
	"github.com/oxbowlake/drover/internal/state"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes. Callers branch on these: gate-pending and blocked are
// STOP signals, not failures.
const (
	exitOK          = 0
	exitError       = 1
	exitNotFound    = 2
	exitBlocked     = 3
	exitGatePending = 4
)

var (
	flagRoot           string
	flagJSON           bool
	flagReviewers      []string
	flagConsultTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Protocol orchestrator for AI+human development workflows",
	Long: `drover drives a project through a declarative protocol: an ordered
set of phases with automated checks, parallel reviewer consultation,
and human approval gates. State is durable and resumable; a crash or
restart never loses or duplicates progress.

The working loop is: status (where am I?), do the work, check
(optional dry run), done (record completion and advance). Gates hold
progress until a human approves; exhausted retries block the project
until a human intervenes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "workspace root directory (holds .drover/)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output JSON")
	rootCmd.PersistentFlags().StringArrayVar(&flagReviewers, "reviewer", nil,
		"reviewer spec 'name=command args...' (repeatable; used by done and serve)")
	rootCmd.PersistentFlags().DurationVar(&flagConsultTimeout, "consult-timeout", 0,
		"overall timeout for one consultation round (default 5m)")

	registerCommands()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(classifyError(err))
	}
	os.Exit(exitStatus)
}

// exitStatus is the process exit code for non-error STOP outcomes
// (blocked, gate-pending). Commands set it; main applies it.
var exitStatus = exitOK

// classifyError maps an error to the documented exit codes.
func classifyError(err error) int {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return exitNotFound
	default:
		return exitError
	}
}

// newOrchestrator builds the orchestrator for CLI commands, with the
// journal attached when it opens and reviewers when configured.
func newOrchestrator() (*orchestrator.Orchestrator, func()) {
	cleanup := func() {}
	opts := []orchestrator.Option{}

	jnl, err := journal.Open(flagRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: journal disabled:", err)
	} else {
		opts = append(opts, orchestrator.WithJournal(jnl))
		cleanup = func() { _ = jnl.Close() }
	}

	if len(flagReviewers) > 0 {
		reviewers := make([]consult.Reviewer, 0, len(flagReviewers))
		for _, spec := range flagReviewers {
			r, err := consult.NewCommandReviewer(spec)
			if err != nil {
				fmt.Fprintln(os.Stderr, "warning: skipping reviewer:", err)
				continue
			}
			reviewers = append(reviewers, r)
		}
		if len(reviewers) > 0 {
			opts = append(opts, orchestrator.WithCoordinator(
				consult.NewCoordinator(reviewers, flagConsultTimeout)))
		}
	}
	return orchestrator.New(flagRoot, opts...), cleanup
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(gateCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Report where a project stands (creates it on first call)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			rep, err := orch.Status(args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(rep)
			}

			t := newTable()
			t.AppendRow(table.Row{"project", rep.ID})
			t.AppendRow(table.Row{"title", rep.Title})
			t.AppendRow(table.Row{"protocol", rep.Protocol})
			t.AppendRow(table.Row{"phase", rep.Phase})
			if rep.PlanPhase != "" {
				t.AppendRow(table.Row{"plan phase", fmt.Sprintf("%s (%s)", rep.PlanPhase, rep.PlanTitle)})
				t.AppendRow(table.Row{"stage", rep.Stage})
			}
			if rep.PlanTotal > 0 {
				t.AppendRow(table.Row{"plan progress", fmt.Sprintf("%d/%d", rep.PlanDone, rep.PlanTotal)})
			}
			t.AppendRow(table.Row{"iteration", rep.Iteration})
			if rep.PendingGate != "" {
				t.AppendRow(table.Row{"gate", rep.PendingGate + " (pending)"})
			}
			if rep.Blocked {
				t.AppendRow(table.Row{"state", "BLOCKED"})
			}
			if rep.Done {
				t.AppendRow(table.Row{"state", "completed"})
			}
			t.Render()

			switch {
			case rep.Blocked:
				exitStatus = exitBlocked
			case rep.PendingGate != "":
				exitStatus = exitGatePending
			}
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	var title, protocolName string
	cmd := &cobra.Command{
		Use:   "init <project-id>",
		Short: "Create a fresh project on a protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			st, err := orch.Init(args[0], title, protocolName)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(st)
			}
			fmt.Printf("created project %s (protocol %s, phase %s)\n", st.ID, st.Protocol, st.Phase)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "human-readable project title (defaults to the id)")
	cmd.Flags().StringVar(&protocolName, "protocol", "", "protocol name (defaults to the bundled 'ide')")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <project-id>",
		Short: "Run the current phase's checks without mutating state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			report, err := orch.Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(report)
			}

			if len(report.Results) == 0 {
				fmt.Println("no checks configured for the current phase")
				return nil
			}
			t := newTable()
			t.AppendHeader(table.Row{"check", "result", "exit"})
			for name, res := range report.Results {
				verdict := "pass"
				if !res.Passed() {
					verdict = "FAIL"
				}
				t.AppendRow(table.Row{name, verdict, res.ExitCode})
			}
			t.SortBy([]table.SortBy{{Name: "check"}})
			t.Render()
			if !report.AllPassed {
				exitStatus = exitError
			}
			return nil
		},
	}
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <project-id>",
		Short: "Record that the current stage's work is finished and advance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			res, err := orch.Done(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

func gateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gate <project-id>",
		Short: "Surface the project's pending approval gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			gate, err := orch.Gate(args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]string{"gate": gate})
			}
			if gate == "" {
				fmt.Println("no gate pending")
				return nil
			}
			fmt.Printf("GATE: %s — STOP and wait for approval\n", gate)
			exitStatus = exitGatePending
			return nil
		},
	}
}

func approveCmd() *cobra.Command {
	var approver string
	cmd := &cobra.Command{
		Use:   "approve <project-id> <gate>",
		Short: "Approve a pending gate and advance into its target phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			res, err := orch.Approve(args[0], args[1], approver)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&approver, "by", "local-user", "identity of the approving human")
	return cmd
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List gates awaiting approval across all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			pending, err := orch.Pending()
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(pending)
			}
			if len(pending) == 0 {
				fmt.Println("no gates pending")
				return nil
			}
			t := newTable()
			t.AppendHeader(table.Row{"project", "title", "phase", "gate"})
			for _, p := range pending {
				t.AppendRow(table.Row{p.ProjectID, p.Title, p.Phase, p.Gate})
			}
			t.Render()
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log [project-id]",
		Short: "Tail the event journal, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, cleanup := newOrchestrator()
			defer cleanup()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			entries, err := orch.Log(id, limit)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("journal is empty")
				return nil
			}
			t := newTable()
			t.AppendHeader(table.Row{"at", "project", "event", "detail"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.CreatedAt, e.ProjectID, e.Event, e.Detail})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := server.New(server.Config{
				Root:           flagRoot,
				Reviewers:      flagReviewers,
				ConsultTimeout: flagConsultTimeout,
			})
			if err != nil {
				return err
			}
			defer cleanup()
			return mcpserver.ServeStdio(s)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the drover version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("drover", version)
		},
	}
}

// printResult renders an advancement result and sets the exit status
// for STOP outcomes.
func printResult(res engine.Result) {
	if flagJSON {
		_ = printJSON(res)
	} else {
		switch res.Status {
		case engine.StatusGatePending:
			fmt.Printf("GATE: %s — STOP and wait for approval\n", res.Gate)
		case engine.StatusBlocked:
			fmt.Printf("BLOCKED: %s\n", res.Detail)
		default:
			fmt.Println(res.Detail)
		}
	}

	switch res.Status {
	case engine.StatusBlocked:
		exitStatus = exitBlocked
	case engine.StatusGatePending:
		exitStatus = exitGatePending
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}
