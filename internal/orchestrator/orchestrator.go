// Package orchestrator composes the protocol loader, state store,
// check runner, consultation coordinator and advancement engine into
// the externally visible verbs.
//
// Per project the façade is single-writer: each verb performs one state
// read, one unit of work, one atomic state write. Callers serialize
// done/approve calls per project id; nothing here takes a lock.
package orchestrator

import (
	"fmt"
	"log"

	"github.com/oxbowlake/drover/internal/checks"
	"github.com/oxbowlake/drover/internal/consult"
	"github.com/oxbowlake/drover/internal/journal"
	"github.com/oxbowlake/drover/internal/plan"
	"github.com/oxbowlake/drover/internal/protocol"
	"github.com/oxbowlake/drover/internal/state"
)

// DefaultProtocol is the bundled protocol used when a project does not
// name one.
const DefaultProtocol = "ide"

// Orchestrator is the façade over the whole subsystem.
type Orchestrator struct {
	root        string
	store       *state.FileStore
	checker     checks.Checker
	coordinator *consult.Coordinator
	journal     *journal.Journal
	proto       string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChecker substitutes the check executor. Used by tests.
func WithChecker(c checks.Checker) Option {
	return func(o *Orchestrator) { o.checker = c }
}

// WithCoordinator installs a consultation coordinator. Without one,
// done() advances on check evidence alone.
func WithCoordinator(c *consult.Coordinator) Option {
	return func(o *Orchestrator) { o.coordinator = c }
}

// WithJournal attaches the event journal. A nil journal drops events.
func WithJournal(j *journal.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithProtocol overrides the default protocol for new projects.
func WithProtocol(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.proto = name
		}
	}
}

// New creates an orchestrator rooted at the given workspace directory.
func New(root string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:    root,
		store:   state.NewFileStore(),
		checker: checks.NewExecChecker(),
		proto:   DefaultProtocol,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Root returns the workspace root the orchestrator operates on.
func (o *Orchestrator) Root() string { return o.root }

// record journals an event best-effort. The journal is an audit trail,
// not the source of truth, so failures only warn.
func (o *Orchestrator) record(projectID, event, detail string) {
	if err := o.journal.Record(projectID, event, detail); err != nil {
		log.Printf("warning: journal write failed: %v", err)
	}
}

// load reads a project and its protocol definition together.
func (o *Orchestrator) load(id string) (*state.Project, *protocol.Definition, error) {
	st, err := o.store.Read(state.ProjectPath(o.root, id))
	if err != nil {
		return nil, nil, err
	}
	def, err := protocol.Load(o.root, st.Protocol)
	if err != nil {
		return nil, nil, fmt.Errorf("project %s: %w", id, err)
	}
	return st, def, nil
}

// save persists a project record and journals the event.
func (o *Orchestrator) save(st *state.Project, event string) error {
	if err := o.store.Write(state.ProjectPath(o.root, st.ID), st, event); err != nil {
		return fmt.Errorf("persisting project %s: %w", st.ID, err)
	}
	if event != "" {
		o.record(st.ID, "state", event)
	}
	return nil
}

// seeder builds the plan seeder for a project: locate the plan file and
// extract its phases. A missing plan file degrades to nil, which the
// engine turns into the synthetic single phase.
func (o *Orchestrator) seeder() func(st *state.Project) ([]plan.Phase, error) {
	return func(st *state.Project) ([]plan.Phase, error) {
		path := plan.FindPlanFile(o.root, st.ID, st.Title)
		if path == "" {
			return nil, nil
		}
		return plan.ExtractPhasesFromFile(path)
	}
}

// Init creates a fresh project record. An empty protocol name uses the
// default; an empty title reuses the id. Creating over an existing
// project is rejected.
func (o *Orchestrator) Init(id, title, protocolName string) (*state.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("project id is required")
	}
	path := state.ProjectPath(o.root, id)
	if o.store.Exists(path) {
		return nil, fmt.Errorf("project %s already exists", id)
	}
	if protocolName == "" {
		protocolName = o.proto
	}
	if title == "" {
		title = id
	}

	def, err := protocol.Load(o.root, protocolName)
	if err != nil {
		return nil, err
	}

	st := state.NewProject(id, title, def.Name, def.Phases[0].ID)
	if err := o.save(st, fmt.Sprintf("project created on protocol %q at phase %q", def.Name, st.Phase)); err != nil {
		return nil, err
	}
	o.record(id, "created", "protocol "+def.Name)
	return st, nil
}
