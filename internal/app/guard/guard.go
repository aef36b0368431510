// Package guard provides the request guard chain for query validation.
package guard

import "strings"

// Result represents the result of a guard check.
type Result struct {
	Accepted bool
	Code     string // e.g. "query_too_long", "invalid_characters"
	Query    string // sanitized query when accepted
}

// Accept returns an accepted result carrying the sanitized query.
func Accept(query string) Result {
	return Result{Accepted: true, Query: query}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Guard is the interface for query guards.
type Guard interface {
	// Name returns the guard name (used in config).
	Name() string
	// ReturnCodes returns the codes this guard can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the guard configuration.
	ValidateConfig(settings map[string]any) error
	// Check validates the query, returning the possibly sanitized query.
	Check(query string) Result
}

// registry holds registered guard factories.
var registry = make(map[string]func() Guard)

// Register registers a guard factory.
func Register(name string, factory func() Guard) {
	registry[name] = factory
}

// GetRegistered returns all registered guard factories.
func GetRegistered() map[string]func() Guard {
	return registry
}

// Chain executes guards in sequence.
type Chain struct {
	guards []Guard
}

// NewChain creates a new guard chain.
func NewChain() *Chain {
	return &Chain{guards: make([]Guard, 0)}
}

// Add adds a guard to the chain.
func (c *Chain) Add(g Guard) {
	c.guards = append(c.guards, g)
}

// Check runs all guards in sequence, threading the sanitized query through.
// Returns immediately when any guard rejects.
func (c *Chain) Check(query string) Result {
	query = strings.TrimSpace(query)
	for _, g := range c.guards {
		result := g.Check(query)
		if !result.Accepted {
			return result
		}
		query = result.Query
	}
	return Accept(query)
}
