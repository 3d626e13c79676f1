package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrFactNotFound is returned when deleting a fact that does not exist.
var ErrFactNotFound = errors.New("fact not found")

// Fact is a single remembered piece of information about a subject, such as
// the preferred language of a user.
type Fact struct {
	Subject   string
	Concept   string
	Value     string
	Timestamp time.Time
}

// Provider persists facts. Implementations must be safe for concurrent use.
type Provider interface {
	// Save stores fact. A fact with the same subject and concept replaces
	// the previous one.
	Save(ctx context.Context, fact Fact) error
	// Load returns the facts of subject for the given concepts, or every
	// fact of subject when no concept is given.
	Load(ctx context.Context, subject string, concepts ...string) ([]Fact, error)
}

// InMemoryProvider is a naive process-local Provider. It offers:
//  1. Facts keyed by subject and concept (Save / Load / Delete)
//  2. Substring Search over fact values
//
// Concurrency: protected by RWMutex.
// Suitable only for tests and demos; swap for a durable store in production.
type InMemoryProvider struct {
	mu    sync.RWMutex
	facts map[string][]Fact // subject -> facts in saving order
}

// NewInMemoryProvider creates an empty provider.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{facts: make(map[string][]Fact)}
}

// Save implements Provider.
func (m *InMemoryProvider) Save(_ context.Context, fact Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	facts := m.facts[fact.Subject]
	facts = slices.DeleteFunc(facts, func(f Fact) bool { return f.Concept == fact.Concept })
	m.facts[fact.Subject] = append(facts, fact)

	return nil
}

// Load implements Provider. Facts are returned in saving order.
func (m *InMemoryProvider) Load(_ context.Context, subject string, concepts ...string) ([]Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Fact, 0, len(m.facts[subject]))
	for _, f := range m.facts[subject] {
		if len(concepts) == 0 || slices.Contains(concepts, f.Concept) {
			out = append(out, f)
		}
	}

	return out, nil
}

// Search returns up to limit facts of subject whose value contains query.
// An empty query matches every fact.
func (m *InMemoryProvider) Search(_ context.Context, subject, query string, limit int) ([]Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Fact, 0, limit)
	for _, f := range m.facts[subject] {
		if len(results) >= limit {
			break
		}
		if query == "" || strings.Contains(f.Value, query) {
			results = append(results, f)
		}
	}

	return results, nil
}

// Delete removes the fact of subject about concept.
func (m *InMemoryProvider) Delete(_ context.Context, subject, concept string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	facts := m.facts[subject]
	i := slices.IndexFunc(facts, func(f Fact) bool { return f.Concept == concept })
	if i < 0 {
		return ErrFactNotFound
	}

	m.facts[subject] = slices.Delete(facts, i, i+1)

	return nil
}
