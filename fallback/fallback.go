// Package fallback implements ordered first-success resolution over a
// list of named candidate sources. The same chain drives DNS server
// detection and public address lookup: methods run strictly in order,
// each candidate passes through one shared exclusion filter, and the
// first method to yield a usable set wins.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.uber.org/multierr"
)

// ErrExhausted is returned by Resolve when every method was tried and
// none produced a usable candidate.
var ErrExhausted = errors.New("all sources exhausted")

// Method is one way of producing candidates of type T. Run returns the
// candidates it found; an error or an empty set moves resolution on to
// the next method.
type Method[T any] struct {
	Name string
	Run  func(ctx context.Context) ([]T, error)
}

// Chain resolves candidates by trying Methods in order.
type Chain[T any] struct {
	// Methods are tried strictly in order. The first method whose
	// candidates survive exclusion ends the walk; later methods never
	// run.
	Methods []Method[T]
	// Exclude rejects individual candidates. It is applied to every
	// method's output identically, regardless of which method produced
	// the candidate. A nil Exclude keeps everything.
	Exclude func(T) bool
	// Defaults, when non-empty, are returned with DefaultSource after
	// exhaustion instead of an error. Defaults bypass Exclude.
	Defaults      []T
	DefaultSource string
}

// Resolve walks the chain and returns the accepted candidates together
// with the name of the method that produced them. Method failures are
// logged and skipped; they only surface, aggregated, when the whole
// chain is exhausted and no defaults are configured.
func (c *Chain[T]) Resolve(ctx context.Context) ([]T, string, error) {
	var failures error
	for _, m := range c.Methods {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		candidates, err := m.Run(ctx)
		if err != nil {
			log.Printf("fallback: method %s failed (error: %v)", m.Name, err)
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		var kept []T
		for _, cand := range candidates {
			if c.Exclude != nil && c.Exclude(cand) {
				continue
			}
			kept = append(kept, cand)
		}
		if len(kept) > 0 {
			return kept, m.Name, nil
		}
	}
	if len(c.Defaults) > 0 {
		return append([]T(nil), c.Defaults...), c.DefaultSource, nil
	}
	if failures == nil {
		return nil, "", ErrExhausted
	}
	return nil, "", fmt.Errorf("%w: %v", ErrExhausted, failures)
}
