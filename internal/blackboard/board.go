// Package blackboard implements the append-only shared findings store that
// investigation agents read from and write to. Findings carry a confidence
// score and are never mutated or removed; groups overlay correlation
// analysis on top of recorded findings by index.
package blackboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// ===== ERRORS =====

var (
	// ErrConfidenceRange is returned when a finding's confidence is outside
	// [0.0, 1.0]. The finding is rejected, not clamped.
	ErrConfidenceRange = errors.New("confidence must be between 0.0 and 1.0")
	// ErrEmptyKey is returned when a finding has no resource key.
	ErrEmptyKey = errors.New("resource key must not be empty")
	// ErrMemberOutOfRange is returned when a group references a finding
	// index that does not exist.
	ErrMemberOutOfRange = errors.New("group member index out of range")
)

// DefaultRootCauseThreshold is the confidence above which a root_cause
// finding counts as established.
const DefaultRootCauseThreshold = 0.8

// HighConfidenceThreshold is the cutoff used by HighConfidence.
const HighConfidenceThreshold = 0.8

// ===== BOARD =====

// Board is a concurrency-safe, append-only findings store shared by every
// agent in a session. The zero value is not usable; use New.
type Board struct {
	mu       sync.RWMutex
	findings []types.Finding
	groups   []types.FindingGroup
	now      func() time.Time
}

// New creates an empty board.
func New() *Board {
	return &Board{now: time.Now}
}

// NewWithClock creates a board with an injected clock, for deterministic
// timestamps in tests.
func NewWithClock(now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{now: now}
}

// Record appends a finding. Out-of-range confidence is rejected with
// ErrConfidenceRange; existing findings are never modified even when the
// same key is recorded again.
func (b *Board) Record(key, observation string, confidence float64, author string) error {
	return b.RecordWithMetadata(key, observation, confidence, author, nil)
}

// RecordWithMetadata appends a finding that carries extra key/value context.
func (b *Board) RecordWithMetadata(key, observation string, confidence float64, author string, metadata map[string]string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if confidence < 0.0 || confidence > 1.0 {
		return fmt.Errorf("%w: got %.3f for %q", ErrConfidenceRange, confidence, key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.findings = append(b.findings, types.Finding{
		ResourceKey: key,
		Observation: observation,
		Confidence:  confidence,
		Author:      author,
		RecordedAt:  b.now(),
		Metadata:    metadata,
	})
	logging.BlackboardDebug("recorded finding #%d key=%s author=%s confidence=%.2f",
		len(b.findings)-1, key, author, confidence)
	return nil
}

// Query returns findings whose resource key starts with or contains
// filterKey (empty matches everything), with confidence >= minConfidence.
// Results preserve recording order.
func (b *Board) Query(filterKey string, minConfidence float64) []types.Finding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.Finding
	for _, f := range b.findings {
		if f.Confidence < minConfidence {
			continue
		}
		if filterKey != "" && !strings.HasPrefix(f.ResourceKey, filterKey) && !strings.Contains(f.ResourceKey, filterKey) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// HighConfidence returns findings at or above the given threshold,
// sorted by confidence descending. Ties preserve recording order.
// Pass HighConfidenceThreshold for the conventional cutoff.
func (b *Board) HighConfidence(threshold float64) []types.Finding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.Finding
	for _, f := range b.findings {
		if f.Confidence >= threshold {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// HasRootCause reports whether a finding with exactly the given key exists
// at or above the threshold. Pass DefaultRootCauseThreshold for the
// conventional cutoff.
func (b *Board) HasRootCause(key string, threshold float64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, f := range b.findings {
		if f.ResourceKey == key && f.Confidence >= threshold {
			return true
		}
	}
	return false
}

// Group records a named correlation over existing findings. Member indices
// must reference recorded findings; the findings themselves are untouched.
func (b *Board) Group(name string, members []int, analysis, author string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, idx := range members {
		if idx < 0 || idx >= len(b.findings) {
			return fmt.Errorf("%w: index %d with %d findings recorded", ErrMemberOutOfRange, idx, len(b.findings))
		}
	}
	b.groups = append(b.groups, types.FindingGroup{
		Name:       name,
		Members:    append([]int(nil), members...),
		Analysis:   analysis,
		Author:     author,
		RecordedAt: b.now(),
	})
	logging.BlackboardDebug("recorded group %q members=%v author=%s", name, members, author)
	return nil
}

// Findings returns a copy of all recorded findings in recording order.
func (b *Board) Findings() []types.Finding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.Finding(nil), b.findings...)
}

// Groups returns a copy of all recorded groups in recording order.
func (b *Board) Groups() []types.FindingGroup {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.FindingGroup(nil), b.groups...)
}

// Len returns the number of recorded findings.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.findings)
}

// Summary renders all findings as numbered lines for inclusion in agent
// prompts. Returns a placeholder line when the board is empty.
func (b *Board) Summary() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.findings) == 0 {
		return "No findings recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("=== Shared Context Findings ===\n")
	for i, f := range b.findings {
		fmt.Fprintf(&sb, "%d. [%s] %s: %s (confidence: %.2f)\n",
			i+1, f.Author, f.ResourceKey, f.Observation, f.Confidence)
	}
	return sb.String()
}
