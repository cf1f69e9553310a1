package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRouteFullRecommendationMap(t *testing.T) {
	r := New(nil, "")
	available := []string{"ComputeSpecialist", "StorageSpecialist", "NetworkSpecialist"}

	got := r.Route("CephOSDDown alert: rbd volume unavailable on node worker-3", available)

	want := map[string]string{
		"ComputeSpecialist": "Baseline for infrastructure alerts; Matched keywords: node",
		"StorageSpecialist": "Matched keywords: ceph, osd, rbd, volume",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Route mismatch (-want +got):\n%s", diff)
	}
}
