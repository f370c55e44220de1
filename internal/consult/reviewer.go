package consult

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Reviewer is one external reviewer collaborator. Invoke sends a review
// prompt and returns the raw reply text.
type Reviewer interface {
	Name() string
	Invoke(ctx context.Context, prompt, role string) (string, error)
}

// CommandReviewer invokes a reviewer as a subprocess. The prompt is fed
// on stdin and the reply read from stdout, so any CLI that speaks
// text-in/text-out can serve as a reviewer without adapters.
type CommandReviewer struct {
	name    string
	command string
	args    []string
}

// NewCommandReviewer creates a subprocess-backed reviewer. The spec
// string is "name=command arg..." or just "command"; in the latter case
// the command itself doubles as the reviewer name.
func NewCommandReviewer(spec string) (*CommandReviewer, error) {
	name := spec
	cmdline := spec
	if idx := strings.Index(spec, "="); idx > 0 {
		name = spec[:idx]
		cmdline = spec[idx+1:]
	}
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty reviewer command in %q", spec)
	}
	return &CommandReviewer{
		name:    name,
		command: fields[0],
		args:    fields[1:],
	}, nil
}

// Name returns the reviewer's display name.
func (r *CommandReviewer) Name() string { return r.name }

// Invoke runs the reviewer command with the prompt on stdin. The role
// is passed through the DROVER_ROLE environment variable so a single
// reviewer binary can tailor its behavior per stage.
func (r *CommandReviewer) Invoke(ctx context.Context, prompt, role string) (string, error) {
	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(cmd.Environ(), "DROVER_ROLE="+role)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("reviewer %s: %w: %s", r.name, err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("reviewer %s: %w", r.name, err)
	}
	return stdout.String(), nil
}
