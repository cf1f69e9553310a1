// Package session implements the durable conversational investigation
// workflow: a signal-driven state machine that runs agent turns, suspends
// at explicit wait points, and resumes when the user answers. Signal
// delivery never blocks the sender; the session loop consumes queued
// signals in order.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"incidentd/internal/agent"
	"incidentd/internal/blackboard"
	"incidentd/internal/logging"
	"incidentd/internal/store"
	"incidentd/internal/types"
)

const greeting = "Hello! I'm your infrastructure investigation assistant. " +
	"I can fetch current alerts, investigate them with domain specialists, " +
	"and correlate related failures. What would you like me to look into?"

const (
	endedMessage     = "Investigation ended by user."
	completedMessage = "Investigation completed (max turns reached)."
)

// Options configures a session. Runtime and Board are required.
type Options struct {
	// ID identifies the session; empty generates a UUID.
	ID string
	// MaxTurns caps user-visible conversation turns.
	MaxTurns int
	// Runtime drives agent turns.
	Runtime agent.Runtime
	// Board is the shared findings blackboard.
	Board *blackboard.Board
	// Store optionally persists state after every transition.
	Store *store.SessionStore
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Session is one investigation conversation. All exported methods are safe
// for concurrent use; Run must be called exactly once.
type Session struct {
	mu      sync.Mutex
	id      string
	state   types.WorkflowState
	queue   []types.WorkflowEvent
	seen    map[string]bool
	notify  chan struct{}
	turns   int
	maxTurn int

	runtime agent.Runtime
	board   *blackboard.Board
	store   *store.SessionStore
	now     func() time.Time
}

// New creates a session in the pending state.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 50
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:      id,
		state:   types.WorkflowState{Status: types.StatusPending},
		seen:    map[string]bool{},
		notify:  make(chan struct{}, 1),
		maxTurn: maxTurns,
		runtime: opts.Runtime,
		board:   opts.Board,
		store:   opts.Store,
		now:     now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ===== SIGNALS =====

// SendMessage queues a user message. Never blocks.
func (s *Session) SendMessage(text string) {
	s.enqueue(types.WorkflowEvent{Kind: types.EventMessage, Payload: text})
}

// SendMessageWithID queues a user message with an idempotency key;
// redelivery of the same key is dropped.
func (s *Session) SendMessageWithID(deliveryID, text string) {
	s.enqueue(types.WorkflowEvent{DeliveryID: deliveryID, Kind: types.EventMessage, Payload: text})
}

// EndWorkflow queues a stop signal. Stop overrides any wait the session
// is parked on.
func (s *Session) EndWorkflow() {
	s.enqueue(types.WorkflowEvent{Kind: types.EventStop})
}

// ProvideConfirmation answers a pending tool-call confirmation.
func (s *Session) ProvideConfirmation(confirmed bool) {
	s.enqueue(types.WorkflowEvent{Kind: types.EventConfirmation, Confirmed: confirmed})
}

// ProvideAgentSelection answers a pending specialist selection. An empty
// name declines the hand-off.
func (s *Session) ProvideAgentSelection(name string) {
	s.enqueue(types.WorkflowEvent{Kind: types.EventSelection, Payload: name})
}

func (s *Session) enqueue(ev types.WorkflowEvent) {
	ev.Timestamp = s.now()

	s.mu.Lock()
	if ev.DeliveryID != "" {
		if s.seen[ev.DeliveryID] {
			s.mu.Unlock()
			logging.SessionDebug("session %s dropped duplicate delivery %s", s.id, ev.DeliveryID)
			return
		}
		s.seen[ev.DeliveryID] = true
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// ===== QUERIES =====

// Status returns the current workflow status.
func (s *Session) Status() types.WorkflowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ChatMessage(nil), s.state.Messages...)
}

// State returns a deep-enough copy of the full workflow state for
// inspection.
func (s *Session) State() types.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Messages = append([]types.ChatMessage(nil), s.state.Messages...)
	if s.state.PendingToolCall != nil {
		call := *s.state.PendingToolCall
		out.PendingToolCall = &call
	}
	if s.state.PendingHandoff != nil {
		h := *s.state.PendingHandoff
		out.PendingHandoff = &h
	}
	if s.state.PendingAgentSelection != nil {
		sel := *s.state.PendingAgentSelection
		sel.AvailableAgents = append([]string(nil), s.state.PendingAgentSelection.AvailableAgents...)
		out.PendingAgentSelection = &sel
	}
	return out
}

// ===== RUN LOOP =====

// Run executes the session until the user stops it, the turn budget is
// exhausted, or the context is cancelled. Turn errors are reported in the
// transcript and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	s.setStatus(types.StatusRunning)
	logging.Session("session %s running (max_turns=%d)", s.id, s.maxTurn)

	if len(s.Messages()) == 0 {
		s.appendMessage("assistant", greeting)
	}
	s.persist(ctx)

	for {
		if s.turns >= s.maxTurn {
			s.appendMessage("assistant", completedMessage)
			s.setStatus(types.StatusCompleted)
			s.persist(ctx)
			logging.Session("session %s completed: turn budget exhausted", s.id)
			return nil
		}

		ev, err := s.waitFor(ctx, types.EventMessage)
		if err != nil {
			return err
		}
		if ev.Kind == types.EventStop {
			return s.end(ctx)
		}

		s.appendMessage("user", ev.Payload)
		s.turns++
		s.persist(ctx)

		result, err := s.runtime.RunTurn(ctx, agent.TurnRequest{Input: s.buildConversationInput()})
		result, err = s.resolveSuspensions(ctx, result, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errStopped) {
				return s.end(ctx)
			}
			s.appendMessage("assistant", "I encountered an error: "+err.Error())
			s.persist(ctx)
			logging.SessionError("session %s turn failed: %v", s.id, err)
			continue
		}

		s.appendMessage("assistant", result.FinalOutput)
		s.persist(ctx)
	}
}

// errStopped signals that a stop event arrived while a turn was suspended.
var errStopped = errors.New("session stopped")

// resolveSuspensions drives a turn through its wait points until it
// produces a final output, the user stops the session, or an error occurs.
func (s *Session) resolveSuspensions(ctx context.Context, result *agent.TurnResult, err error) (*agent.TurnResult, error) {
	for err == nil && result.Suspended != nil {
		susp := result.Suspended
		switch susp.Kind {
		case agent.SuspendQuestion:
			result, err = s.resolveQuestion(ctx, susp)
		case agent.SuspendSelection:
			result, err = s.resolveSelection(ctx, susp)
		default:
			return nil, fmt.Errorf("unknown suspension kind %q", susp.Kind)
		}
	}
	return result, err
}

func (s *Session) resolveQuestion(ctx context.Context, susp *agent.Suspension) (*agent.TurnResult, error) {
	s.mu.Lock()
	s.state.ClearPending()
	s.state.PendingQuestion = susp.Question
	s.mu.Unlock()
	s.appendMessage("assistant", susp.Question)
	s.persist(ctx)
	logging.Session("session %s waiting on question", s.id)

	ev, err := s.waitFor(ctx, types.EventMessage)
	if err != nil {
		return nil, err
	}
	if ev.Kind == types.EventStop {
		s.clearPending()
		return nil, errStopped
	}

	s.appendMessage("user", ev.Payload)
	s.clearPending()
	s.persist(ctx)
	return s.runtime.Resume(ctx, susp, ev.Payload)
}

func (s *Session) resolveSelection(ctx context.Context, susp *agent.Suspension) (*agent.TurnResult, error) {
	s.mu.Lock()
	s.state.ClearPending()
	s.state.PendingAgentSelection = susp.Selection
	s.mu.Unlock()
	s.appendMessage("assistant", formatSelectionPrompt(susp.Selection))
	s.persist(ctx)
	logging.Session("session %s waiting on agent selection", s.id)

	ev, err := s.waitFor(ctx, types.EventSelection)
	if err != nil {
		return nil, err
	}
	if ev.Kind == types.EventStop {
		s.clearPending()
		return nil, errStopped
	}

	s.clearPending()
	if ev.Payload == "" {
		// Declining is a normal outcome, not an error: note it and let the
		// agent continue without the hand-off.
		s.appendMessage("assistant", "Hand-off cancelled; continuing the investigation without delegating.")
	}
	s.persist(ctx)
	return s.runtime.Resume(ctx, susp, ev.Payload)
}

// end finalizes a user-requested stop.
func (s *Session) end(ctx context.Context) error {
	s.clearPending()
	s.appendMessage("assistant", endedMessage)
	s.setStatus(types.StatusEnded)
	s.persist(ctx)
	logging.Session("session %s ended by user", s.id)
	return nil
}

// waitFor blocks until an event of the wanted kind (or a stop event, which
// overrides every wait) is available. Events of other kinds arriving while
// parked are dropped with a log line.
func (s *Session) waitFor(ctx context.Context, want types.EventKind) (types.WorkflowEvent, error) {
	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			if ev.Kind == want || ev.Kind == types.EventStop {
				s.mu.Unlock()
				return ev, nil
			}
			logging.SessionDebug("session %s dropped %s event while waiting for %s", s.id, ev.Kind, want)
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.WorkflowEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// ===== STATE HELPERS =====

func (s *Session) setStatus(status types.WorkflowStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = status
}

func (s *Session) appendMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = append(s.state.Messages, types.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
}

func (s *Session) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ClearPending()
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSession(ctx, s.id, s.State()); err != nil {
		logging.SessionError("session %s persist failed: %v", s.id, err)
	}
	if s.board != nil {
		if err := s.store.SaveFindings(ctx, s.id, s.board.Findings()); err != nil {
			logging.SessionError("session %s findings persist failed: %v", s.id, err)
		}
	}
}

// buildConversationInput assembles the turn input: the last ten transcript
// messages plus the current blackboard summary.
func (s *Session) buildConversationInput() string {
	messages := s.Messages()
	if len(messages) > 10 {
		messages = messages[len(messages)-10:]
	}

	var sb strings.Builder
	sb.WriteString("## Conversation History\n\n")
	for _, m := range messages {
		switch m.Role {
		case "user":
			sb.WriteString("**User:** ")
		case "assistant":
			sb.WriteString("**Assistant:** ")
		default:
			sb.WriteString("**" + m.Role + ":** ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Current Investigation Findings\n\n")
	if s.board != nil {
		sb.WriteString(s.board.Summary())
	} else {
		sb.WriteString("No findings recorded yet.")
	}
	return sb.String()
}

func formatSelectionPrompt(sel *types.AgentSelectionRequest) string {
	if sel == nil {
		return "A specialist hand-off needs your approval."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s wants to hand off to %s", sel.FromAgent, sel.SuggestedAgent)
	if sel.Reason != "" {
		fmt.Fprintf(&sb, " (%s)", sel.Reason)
	}
	sb.WriteString(". Approve a specialist or decline.")
	if len(sel.AvailableAgents) > 0 {
		fmt.Fprintf(&sb, " Available: %s.", strings.Join(sel.AvailableAgents, ", "))
	}
	return sb.String()
}
