// Package checks executes named verification commands (build, test,
// lint) and classifies their results.
//
// All configured checks run: the runner never short-circuits on the
// first failure, so callers always get full diagnostic context. Retry
// decisions belong to the advancement engine, not here.
package checks

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sort"
)

// Result captures the outcome of one check command.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Passed reports whether the check exited cleanly.
func (r Result) Passed() bool { return r.ExitCode == 0 }

// Report aggregates the results of a full check run.
type Report struct {
	AllPassed bool              `json:"all_passed"`
	Results   map[string]Result `json:"results"`
}

// Checker runs a single command in a working directory. Abstracted so
// tests and alternative transports can substitute the subprocess call.
type Checker interface {
	Run(ctx context.Context, command, cwd string) Result
}

// ExecChecker implements Checker with a blocking shell subprocess.
type ExecChecker struct{}

// NewExecChecker creates a subprocess-backed checker.
func NewExecChecker() *ExecChecker {
	return &ExecChecker{}
}

// Run executes the command through the shell and captures its output.
// A command that cannot be started at all reports exit code -1 with the
// spawn error in stderr.
func (c *ExecChecker) Run(ctx context.Context, command, cwd string) Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	return res
}

// RunChecks executes every configured check in name order and reports
// the aggregate outcome. An empty check map passes vacuously.
func RunChecks(ctx context.Context, checker Checker, cmds map[string]string, cwd string) Report {
	report := Report{
		AllPassed: true,
		Results:   make(map[string]Result, len(cmds)),
	}

	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := checker.Run(ctx, cmds[name], cwd)
		report.Results[name] = res
		if !res.Passed() {
			report.AllPassed = false
		}
	}
	return report
}

// FailedNames returns the names of failed checks in sorted order.
func (r Report) FailedNames() []string {
	var failed []string
	for name, res := range r.Results {
		if !res.Passed() {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}
