package routetrace

import "testing"

func TestHistoryEvictsOldest(t *testing.T) {
	t.Parallel()
	h := NewHistory(3)
	same := Route{"10.0.0.1", "172.16.0.1", "8.8.8.8"}
	for i := 0; i < 5; i++ {
		h.Append(same)
		if got := h.Stability(); got != 100.0 {
			t.Errorf("Stability() after append %d = %v, want 100.0", i+1, got)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
}

func TestHistoryStabilityAlternatingRoutes(t *testing.T) {
	t.Parallel()
	a := Route{"10.0.0.1", "8.8.8.8"}
	b := Route{"10.0.0.1", "1.1.1.1"}
	h := NewHistory(5)
	for _, r := range []Route{a, b, a, b, a} {
		h.Append(r)
	}
	// Current route is a; two of the four earlier routes match.
	if got := h.Stability(); got != 50.0 {
		t.Errorf("Stability() = %v, want 50.0", got)
	}
	if got := h.Comparisons(); got != 4 {
		t.Errorf("Comparisons() = %d, want 4", got)
	}
}

func TestHistoryVacuouslyStable(t *testing.T) {
	t.Parallel()
	h := NewHistory(10)
	if got := h.Stability(); got != 100.0 {
		t.Errorf("empty Stability() = %v, want 100.0", got)
	}
	h.Append(Route{"10.0.0.1"})
	if got := h.Stability(); got != 100.0 {
		t.Errorf("single-route Stability() = %v, want 100.0", got)
	}
	if got := h.Comparisons(); got != 0 {
		t.Errorf("Comparisons() = %d, want 0", got)
	}
}

func TestHistoryDefaultCapacity(t *testing.T) {
	t.Parallel()
	h := NewHistory(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		h.Append(Route{"10.0.0.1"})
	}
	if h.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", h.Len(), DefaultCapacity)
	}
}

func TestRouteEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b Route
		want bool
	}{
		{"identical", Route{"a", "b"}, Route{"a", "b"}, true},
		{"different hop", Route{"a", "b"}, Route{"a", "c"}, false},
		{"different length", Route{"a", "b"}, Route{"a", "b", "c"}, false},
		{"different order", Route{"a", "b"}, Route{"b", "a"}, false},
		{"both empty", Route{}, Route{}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}
