package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/oxbowlake/drover/internal/protocol"
	"github.com/oxbowlake/drover/internal/state"
)

// ErrUnknownGate is returned when a gate name appears in no phase of
// the protocol.
var ErrUnknownGate = errors.New("unknown gate")

// ErrGateNotPending is returned when approval is attempted on a gate
// the project has not yet reached, or has already passed.
var ErrGateNotPending = errors.New("gate is not pending")

// GatePhase returns the phase carrying the named gate, or false.
func GatePhase(def *protocol.Definition, gateName string) (*protocol.Phase, bool) {
	for i := range def.Phases {
		if g := def.Phases[i].Gate; g != nil && g.Name == gateName {
			return &def.Phases[i], true
		}
	}
	return nil, false
}

// ApproveGate records approval of a pending gate and enters the gate's
// target phase. Approval is one-time: the gate record keeps who
// approved and when, and the gate never holds the project again.
//
// The record is mutated in place; the caller persists it.
func ApproveGate(def *protocol.Definition, st *state.Project, gateName, approver string, seed PlanSeeder) (Result, error) {
	ph, ok := GatePhase(def, gateName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q in protocol %q", ErrUnknownGate, gateName, def.Name)
	}
	rec, seen := st.Gates[gateName]
	if !seen || rec.Status != state.GatePending {
		return Result{}, fmt.Errorf("%w: %q", ErrGateNotPending, gateName)
	}

	st.Gates[gateName] = state.GateRecord{
		Status:     state.GateApproved,
		ApprovedBy: approver,
		ApprovedAt: timeNow().UTC().Format(time.RFC3339),
	}
	return enterPhase(def, st, ph.Gate.Next, seed)
}

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now
