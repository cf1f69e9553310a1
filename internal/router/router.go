// Package router implements deterministic keyword-based specialist
// recommendation. Routing is a pure function of the alert text and the set
// of available specialists - no model calls, no randomness - so the same
// alert always produces the same recommendations.
package router

import (
	"sort"
	"strings"

	"incidentd/internal/logging"
)

// BaselineReason annotates the always-included baseline specialist.
const BaselineReason = "Baseline for infrastructure alerts"

// DefaultBaseline is the specialist recommended for every alert.
const DefaultBaseline = "ComputeSpecialist"

// Table maps specialist names to the lowercase keywords that select them.
type Table map[string][]string

// DefaultTable returns the built-in keyword mapping for the three
// infrastructure domains.
func DefaultTable() Table {
	return Table{
		"ComputeSpecialist": {
			"pod", "deployment", "replicaset", "daemonset", "statefulset",
			"configmap", "namespace", "kubelet", "container", "node",
			"event", "schedule", "oom", "cpu", "memory", "workload",
		},
		"StorageSpecialist": {
			"ceph", "rbd", "pvc", "persistentvolume", "persistentvolumeclaim",
			"storageclass", "csi", "rook", "objectstore", "block",
			"filesystem", "osd", "mon", "mgr", "rgw", "mds", "crush",
			"placement group", "pg", "disk", "volume",
		},
		"NetworkSpecialist": {
			"service", "ingress", "dns", "endpoint", "loadbalancer",
			"connectivity", "latency", "timeout", "network", "cni",
			"netpol", "networkpolicy", "route", "firewall", "packet",
		},
	}
}

// Router recommends specialists for an alert based on keyword matching.
type Router struct {
	table    Table
	baseline string
}

// New creates a router over a keyword table. A nil table uses DefaultTable;
// an empty baseline uses DefaultBaseline.
func New(table Table, baseline string) *Router {
	if table == nil {
		table = DefaultTable()
	}
	if baseline == "" {
		baseline = DefaultBaseline
	}
	return &Router{table: table, baseline: baseline}
}

// Route returns the recommended specialists for an alert, mapping each
// specialist name to a human-readable reason. Only specialists present in
// available are returned. The baseline specialist is always included when
// available, with keyword matches appended to its reason.
func (r *Router) Route(alertText string, available []string) map[string]string {
	lower := strings.ToLower(alertText)
	availSet := make(map[string]bool, len(available))
	for _, name := range available {
		availSet[name] = true
	}

	out := make(map[string]string)
	for name, keywords := range r.table {
		if !availSet[name] {
			continue
		}
		matched := matchKeywords(lower, keywords)
		if len(matched) == 0 {
			continue
		}
		out[name] = "Matched keywords: " + strings.Join(matched, ", ")
	}

	if availSet[r.baseline] {
		if reason, ok := out[r.baseline]; ok {
			out[r.baseline] = BaselineReason + "; " + reason
		} else {
			out[r.baseline] = BaselineReason
		}
	}

	logging.RouterDebug("routed alert (%d chars) to %d specialists", len(alertText), len(out))
	return out
}

// Recommended reports whether the router would recommend the named
// specialist for the alert.
func (r *Router) Recommended(alertText, name string, available []string) bool {
	_, ok := r.Route(alertText, available)[name]
	return ok
}

// matchKeywords returns the keywords found in the text, sorted so the
// reason string is stable across calls.
func matchKeywords(lowerText string, keywords []string) []string {
	var matched []string
	seen := map[string]bool{}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" || seen[kw] {
			continue
		}
		if strings.Contains(lowerText, kw) {
			matched = append(matched, kw)
			seen[kw] = true
		}
	}
	sort.Strings(matched)
	return matched
}
