package internaldefs

import (
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	seen := make(map[goIdentity.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("duplicate metric id %d", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "goidentity_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}

	// Every id except the histogram must have a counter definition.
	if len(CounterDefs)+len(HistogramDefs) != int(goIdentity.MetricSignInLatency)+1 {
		t.Fatalf("expected %d definitions, got %d", int(goIdentity.MetricSignInLatency)+1, len(CounterDefs)+len(HistogramDefs))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
