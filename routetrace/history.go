package routetrace

import "github.com/ispmon/ispmon/probe"

// DefaultCapacity is how many routes a history remembers unless
// configured otherwise.
const DefaultCapacity = 10

// History remembers the most recent routes observed toward one target.
// It is a bounded FIFO: appending past capacity evicts the oldest
// route. A history belongs to exactly one probe instance and is never
// cleared.
type History struct {
	capacity int
	routes   []Route
}

// NewHistory returns an empty history. A capacity below one falls back
// to DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity}
}

// Append records one observed route, evicting the oldest when the
// history is full.
func (h *History) Append(r Route) {
	h.routes = append(h.routes, r)
	if len(h.routes) > h.capacity {
		h.routes = h.routes[1:]
	}
}

// Len returns the number of routes currently remembered.
func (h *History) Len() int { return len(h.routes) }

// Current returns the most recently appended route, or nil for an
// empty history.
func (h *History) Current() Route {
	if len(h.routes) == 0 {
		return nil
	}
	return h.routes[len(h.routes)-1]
}

// Stability scores how stable the path looks given the remembered
// routes: the percentage of earlier routes that match the current one
// exactly, hop for hop. With fewer than two routes there is no prior
// data to contradict the current one and the path counts as fully
// stable.
func (h *History) Stability() float64 {
	if len(h.routes) < 2 {
		return 100.0
	}
	current := h.Current()
	matches := 0
	for _, r := range h.routes[:len(h.routes)-1] {
		if current.Equal(r) {
			matches++
		}
	}
	return probe.Round2(float64(matches) / float64(len(h.routes)-1) * 100)
}

// Comparisons returns how many earlier routes the current one was
// scored against. The original monitor reported this as
// "route_changes"; the name is kept for the external surface even
// though it counts comparisons, not detected changes.
func (h *History) Comparisons() int {
	if len(h.routes) < 2 {
		return 0
	}
	return len(h.routes) - 1
}
