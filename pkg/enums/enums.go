// Package enums holds the closed value sets shared by the database schema,
// the HTTP layer, and event payloads.
package enums

import (
	"fmt"
	"slices"
)

// domain is the set of legal values for one string enum.
type domain[T ~string] struct {
	label  string
	values []T
}

func newDomain[T ~string](label string, values ...T) domain[T] {
	return domain[T]{label: label, values: values}
}

func (d domain[T]) has(v T) bool {
	return slices.Contains(d.values, v)
}

func (d domain[T]) parse(raw string) (T, error) {
	if v := T(raw); d.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", d.label, raw)
}

func (d domain[T]) all() []T {
	return slices.Clone(d.values)
}

// graph lists the states reachable in one step. A state mapped to no
// successors is terminal; an unknown state has no edges at all.
type graph[T comparable] map[T][]T

func (g graph[T]) allows(from, to T) bool {
	return slices.Contains(g[from], to)
}

func (g graph[T]) terminal(s T) bool {
	next, ok := g[s]
	return ok && len(next) == 0
}
