// Package simulation holds the deterministic simulations a session can run.
// Simulations register themselves in init() functions so commands can pick one
// by ID without importing it directly.
package simulation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/lockstep/internal/core"
)

// Simulation is a deterministic game state advanced one tic at a time.
// Given the same runtime seed, ruleset and command stream every peer must reach
// the same Checksum.
type Simulation interface {
	// ID returns a unique identifier (e.g. "trail").
	ID() string

	// Title returns a human-readable name.
	Title() string

	// Reset initializes the state for a new session.
	Reset(rt core.RuntimeConfig, rules core.Ruleset)

	// RunTic advances the state by exactly one tic.
	RunTic(frame core.TicFrame)

	// Tics returns how many tics have run since Reset.
	Tics() int

	// Checksum summarizes the full state.
	Checksum() uint64
}

// Info describes a registered simulation.
type Info struct {
	ID    string
	Title string
}

// Factory creates a new simulation instance.
type Factory func() Simulation

var (
	factories = make(map[string]Factory)
	titles    = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a factory. Panics if the ID is already taken.
func Register(id string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[id]; exists {
		panic(fmt.Sprintf("simulation: %q already registered", id))
	}
	factories[id] = f
	titles[id] = f().Title()
}

// List returns all registered simulations sorted by ID.
func List() []Info {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]Info, 0, len(factories))
	for id := range factories {
		result = append(result, Info{ID: id, Title: titles[id]})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Create instantiates a simulation by ID.
func Create(id string) (Simulation, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("simulation: unknown simulation %q", id)
	}
	return f(), nil
}

// Exists reports whether id is registered.
func Exists(id string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[id]
	return ok
}
