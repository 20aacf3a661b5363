package benchmark

import (
	"context"
	"errors"
	"fmt"
)

// How a scenario obtains its connection
type Strategy int

const (
	// One connection opened by a fixture and shared by every invocation
	Reused Strategy = iota
	// A connection opened and closed inside every invocation
	Fresh
)

func (s Strategy) String() string {
	switch s {
	case Reused:
		return "reused"
	case Fresh:
		return "fresh"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Which query text a scenario sends
type Complexity int

const (
	Simple Complexity = iota
	Complex
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Complex:
		return "complex"
	default:
		return fmt.Sprintf("complexity(%d)", int(c))
	}
}

// A resource shared by a group of scenarios. Fixtures are compared by identity, so
// implementations should be pointers.
type Fixture interface {
	// Called once, before the first scenario that depends on the fixture
	Setup(ctx context.Context) error
	// Called once, after the last scenario that depends on the fixture. Must tolerate
	// being called again, and being called after a failed Setup.
	Teardown() error
}

// A named, timed operation
type Scenario struct {
	Name     string
	Strategy Strategy
	Query    Complexity
	// Setup/teardown dependency; nil when the scenario owns all of its resources
	Fixture Fixture
	Op      func(ctx context.Context) error
}

var (
	ErrSetup    = errors.New("setup failed")
	ErrConnect  = errors.New("connection failed")
	ErrQuery    = errors.New("query execution failed")
	ErrCursor   = errors.New("cursor read failed")
	ErrTeardown = errors.New("teardown failed")
)

// Returns the scenarios whose names are listed, keeping their original order. An empty
// list selects every scenario.
func Filter(scenarios []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}

	known := map[string]bool{}
	for _, s := range scenarios {
		known[s.Name] = true
	}

	selected := map[string]bool{}
	for _, name := range names {
		if !known[name] {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		selected[name] = true
	}

	filtered := []Scenario{}
	for _, s := range scenarios {
		if selected[s.Name] {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}
