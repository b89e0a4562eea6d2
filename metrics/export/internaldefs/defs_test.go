package internaldefs

import (
	"strings"
	"testing"

	identity "github.com/allocar/identity"
)

func TestEveryCounterHasOneDefinition(t *testing.T) {
	seen := map[identity.MetricID]string{}
	names := map[string]bool{}

	for _, def := range CounterDefs {
		if prev, ok := seen[def.ID]; ok {
			t.Fatalf("metric %d defined twice (%s, %s)", def.ID, prev, def.Name)
		}
		if names[def.Name] {
			t.Fatalf("duplicate name %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "identity_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
		seen[def.ID] = def.Name
		names[def.Name] = true
	}

	// All ids except the latency histogram are counters.
	if len(CounterDefs)+len(HistogramDefs) != identity.MetricIDCount {
		t.Fatalf("definitions cover %d ids, engine has %d", len(CounterDefs)+len(HistogramDefs), identity.MetricIDCount)
	}
	if len(HistogramBoundSuffix) != len(HistogramUpperBounds)+1 {
		t.Fatal("bucket suffixes must cover the finite bounds plus +Inf")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3, 99}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
