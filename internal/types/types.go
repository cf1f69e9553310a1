// Package types contains shared type definitions used across incidentd.
// This package exists to break import cycles - it has no dependencies
// on other incidentd packages.
package types

import (
	"time"
)

// ===== WORKFLOW LIFECYCLE =====

// WorkflowStatus tracks the lifecycle of an investigation session.
type WorkflowStatus string

const (
	// StatusPending means the session exists but Run has not started.
	StatusPending WorkflowStatus = "pending"
	// StatusRunning means the session loop is active (including while
	// suspended waiting for user input).
	StatusRunning WorkflowStatus = "running"
	// StatusCompleted means the session ended normally (turn budget
	// exhausted or investigation finished).
	StatusCompleted WorkflowStatus = "completed"
	// StatusEnded means the user terminated the session with a stop signal.
	StatusEnded WorkflowStatus = "ended"
)

// Terminal reports whether the status is a final state.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusEnded
}

// ===== SIGNALS =====

// EventKind identifies the kind of external signal delivered to a session.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventStop         EventKind = "stop"
	EventConfirmation EventKind = "confirmation"
	EventSelection    EventKind = "selection"
)

// WorkflowEvent is a signal delivered to a running session. Signals are
// queued and consumed by the session loop; delivery never blocks the sender.
type WorkflowEvent struct {
	// DeliveryID is an optional caller-supplied idempotency key. Events
	// with a DeliveryID already seen by the session are dropped.
	DeliveryID string    `json:"delivery_id,omitempty"`
	Kind       EventKind `json:"kind"`
	// Payload carries the user message for EventMessage, or the selected
	// agent name for EventSelection (empty means the user declined).
	Payload string `json:"payload,omitempty"`
	// Confirmed carries the yes/no answer for EventConfirmation.
	Confirmed bool      `json:"confirmed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ===== CONVERSATION =====

// ChatMessage is one entry in a session transcript.
type ChatMessage struct {
	Role      string            `json:"role"` // "user", "assistant", "system"
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ToolCall describes a tool invocation awaiting confirmation.
type ToolCall struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Handoff describes a pending transfer of control between agents.
type Handoff struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Instruction string `json:"instruction,omitempty"`
}

// AgentSelectionRequest asks the human to pick (or decline) a specialist
// before a delegation that the router did not recommend.
type AgentSelectionRequest struct {
	FromAgent       string   `json:"from_agent"`
	SuggestedAgent  string   `json:"suggested_agent"`
	Reason          string   `json:"reason,omitempty"`
	AvailableAgents []string `json:"available_agents"`
}

// WorkflowState is the durable, serializable state of a session. At most
// one pending field may be non-empty at a time.
type WorkflowState struct {
	Status                WorkflowStatus         `json:"status"`
	Messages              []ChatMessage          `json:"messages"`
	PendingQuestion       string                 `json:"pending_question,omitempty"`
	PendingToolCall       *ToolCall              `json:"pending_tool_call,omitempty"`
	PendingHandoff        *Handoff               `json:"pending_handoff,omitempty"`
	PendingAgentSelection *AgentSelectionRequest `json:"pending_agent_selection,omitempty"`
}

// PendingCount returns how many pending slots are occupied. A well-formed
// state never has more than one.
func (w *WorkflowState) PendingCount() int {
	n := 0
	if w.PendingQuestion != "" {
		n++
	}
	if w.PendingToolCall != nil {
		n++
	}
	if w.PendingHandoff != nil {
		n++
	}
	if w.PendingAgentSelection != nil {
		n++
	}
	return n
}

// ClearPending resets every pending slot.
func (w *WorkflowState) ClearPending() {
	w.PendingQuestion = ""
	w.PendingToolCall = nil
	w.PendingHandoff = nil
	w.PendingAgentSelection = nil
}

// ===== BLACKBOARD =====

// Finding is one observation recorded on the shared blackboard.
type Finding struct {
	// ResourceKey names the subject, conventionally "type:identifier"
	// (e.g. "pod:api-server-abc", "root_cause:alert-123").
	ResourceKey string            `json:"resource_key"`
	Observation string            `json:"observation"`
	Confidence  float64           `json:"confidence"` // 0.0 - 1.0 inclusive
	Author      string            `json:"author"`
	RecordedAt  time.Time         `json:"recorded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FindingGroup is a named correlation over previously recorded findings.
// Members reference findings by index; groups never modify findings.
type FindingGroup struct {
	Name       string    `json:"name"`
	Members    []int     `json:"members"`
	Analysis   string    `json:"analysis,omitempty"`
	Author     string    `json:"author"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ===== ALERTS =====

// AlertStatus is the alert lifecycle state reported by the alert source.
type AlertStatus string

const (
	AlertFiring   AlertStatus = "firing"
	AlertResolved AlertStatus = "resolved"
)

// AlertRecord is a normalized alert fetched from the monitoring system.
type AlertRecord struct {
	AlertName    string            `json:"alert_name"`
	Status       AlertStatus       `json:"status"`
	Labels       map[string]string `json:"labels,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     time.Time         `json:"starts_at"`
	EndsAt       time.Time         `json:"ends_at,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
	GeneratorURL string            `json:"generator_url,omitempty"`
}

// AlertFindings is the structured assessment an investigator produces for
// one alert in one correlation round.
type AlertFindings struct {
	AlertName           string            `json:"alert_name"`
	AlertID             string            `json:"alert_id"`
	Round               int               `json:"round"`
	RootCauseAssessment string            `json:"root_cause_assessment"`
	AffectedLayers      []string          `json:"affected_layers"`
	AffectedResources   []string          `json:"affected_resources,omitempty"`
	Scope               string            `json:"scope,omitempty"`
	Confidence          float64           `json:"confidence"`
	SpecialistFindings  map[string]string `json:"specialist_findings,omitempty"`
	InvestigationPath   []string          `json:"investigation_path,omitempty"`
	StartsAt            time.Time         `json:"starts_at,omitempty"`
}
