// Package agent defines investigation agents and the runtime that drives
// their model and tool loop. A turn either produces a final assistant
// message or suspends at an explicit wait point (a question for the user,
// or a specialist selection request) that the caller resumes later with
// the injected answer.
package agent

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"incidentd/internal/types"
)

// ===== ERRORS =====

var (
	// ErrMaxStepsExceeded means an agent turn hit its model/tool iteration
	// budget without producing a final answer.
	ErrMaxStepsExceeded = errors.New("agent exceeded max steps for one turn")
	// ErrUnknownTool means the model called a tool the active agent does
	// not have.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNotSuspended is returned when Resume is called without a
	// suspension.
	ErrNotSuspended = errors.New("turn is not suspended")
)

// ===== DEFINITIONS =====

// Tool is one callable capability of an agent. Run errors are converted to
// observable tool output by the runtime rather than failing the turn.
type Tool struct {
	Name        string
	Description string
	Parameters  *genai.Schema
	Run         func(ctx context.Context, args map[string]any) (string, error)
}

// Definition describes one agent: its identity, system instructions and
// tools. Handoff targets come from the session's graph, not the
// definition.
type Definition struct {
	Name         string
	Instructions string
	Tools        []*Tool
}

func (d *Definition) tool(name string) *Tool {
	for _, t := range d.Tools {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ===== TURNS =====

// TurnRequest starts one agent turn.
type TurnRequest struct {
	// Agent is the starting agent; empty uses the graph entry.
	Agent string
	// Input is the full conversation input block for this turn.
	Input string
}

// TraceStep records one action taken during a turn, for transcripts and
// debugging.
type TraceStep struct {
	Agent  string
	Action string // "tool", "handoff", "suspend"
	Detail string
}

// SuspendKind distinguishes the two wait points a turn can stop at.
type SuspendKind string

const (
	SuspendQuestion  SuspendKind = "question"
	SuspendSelection SuspendKind = "selection"
)

// Suspension is a paused turn. The embedded resume state is opaque to
// callers; pass the whole value back to Resume with the user's answer.
type Suspension struct {
	Kind      SuspendKind
	Question  string
	Selection *types.AgentSelectionRequest

	state *resumeState
}

// TurnResult is the outcome of RunTurn or Resume: either FinalOutput is
// set, or Suspended is non-nil.
type TurnResult struct {
	FinalOutput string
	Suspended   *Suspension
	Trace       []TraceStep
}

// AuthorizeFunc decides whether a handoff may proceed without asking the
// human. When it returns a non-nil selection request, the runtime suspends
// and waits for the user's choice.
type AuthorizeFunc func(from, to string) (allowed bool, selection *types.AgentSelectionRequest)

// Runtime drives agent turns. Implementations must be safe for use from a
// single session goroutine.
type Runtime interface {
	RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	Resume(ctx context.Context, susp *Suspension, injected string) (*TurnResult, error)
}
