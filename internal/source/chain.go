// Package source tries an ordered list of data sources until one answers.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Attempt records one failed source in a chain.
type Attempt struct {
	Source string
	Err    error
}

// Result is the outcome of a chain lookup. On success Source names the
// source that answered and Err is nil; otherwise Err joins every attempt.
type Result[T any] struct {
	Value    T
	Source   string
	Err      error
	Attempts []Attempt
}

// OK reports whether some source answered.
func (r Result[T]) OK() bool { return r.Err == nil }

// Step is one named source in a chain.
type Step[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Chain tries its steps in order.
type Chain[T any] struct {
	steps  []Step[T]
	accept func(T) bool
	logger *slog.Logger
}

// NewChain builds a chain over steps. accept, when non-nil, rejects answers
// that should fall through to the next step (for example empty lists).
func NewChain[T any](logger *slog.Logger, accept func(T) bool, steps ...Step[T]) *Chain[T] {
	return &Chain[T]{steps: steps, accept: accept, logger: logger}
}

// Fetch returns the first accepted answer. An empty chain fails with
// ErrNoSources.
func (c *Chain[T]) Fetch(ctx context.Context) Result[T] {
	var res Result[T]
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Source: s.Name, Err: err})
			break
		}
		v, err := s.Fetch(ctx)
		if err == nil && c.accept != nil && !c.accept(v) {
			err = errRejected
		}
		if err == nil {
			res.Value = v
			res.Source = s.Name
			return res
		}
		res.Attempts = append(res.Attempts, Attempt{Source: s.Name, Err: err})
		if c.logger != nil {
			c.logger.WarnContext(ctx, "source: step failed, trying next",
				slog.String("source", s.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	res.Err = joinAttempts(res.Attempts)
	return res
}

var errRejected = errors.New("answer rejected")

// ErrNoSources is returned by a chain with no steps.
var ErrNoSources = errors.New("source: no sources configured")

func joinAttempts(attempts []Attempt) error {
	if len(attempts) == 0 {
		return ErrNoSources
	}
	errs := make([]error, 0, len(attempts))
	names := make([]string, 0, len(attempts))
	for _, a := range attempts {
		errs = append(errs, fmt.Errorf("%s: %w", a.Source, a.Err))
		names = append(names, a.Source)
	}
	return fmt.Errorf("source: all sources failed (%s): %w", strings.Join(names, ", "), errors.Join(errs...))
}

// NonEmpty accepts non-empty slices.
func NonEmpty[E any](v []E) bool { return len(v) > 0 }
