package database

import (
	"context"
)

// Store is the persistence boundary consumed by the insights engine,
// recommender, scheduler, and HTTP layer. Two implementations exist: the
// MySQL store for production and the in-memory store for development and
// tests.
//
// Derived-field writes follow last-writer-wins: a recompute run and a fresh
// ingest racing on the same record both produce valid values, and no
// snapshot isolation is provided across reads. This is an accepted,
// documented race at this corpus scale.
type Store interface {
	// CreateCall inserts a new record. Returns ErrCallAlreadyExists when the
	// call identifier is already present.
	CreateCall(ctx context.Context, record *CallRecord) error

	// GetCall fetches one record by its public call identifier. Returns
	// ErrCallNotFound when absent.
	GetCall(ctx context.Context, callID string) (*CallRecord, error)

	// ListCalls returns a filtered page ordered by start time descending,
	// along with the total count matching the filter.
	ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, int, error)

	// ListAllCalls returns the full corpus ordered by call identifier
	// ascending, for recompute runs and recommendation scans.
	ListAllCalls(ctx context.Context) ([]*CallRecord, error)

	// UpdateInsights replaces the three derived fields of a record as a unit.
	UpdateInsights(ctx context.Context, callID string, insights CallInsights) error

	// UpsertAgentAggregate writes one agent's recomputed aggregate.
	UpsertAgentAggregate(ctx context.Context, aggregate *AgentAggregate) error

	// ListAgentAggregates returns all aggregates ordered by average
	// sentiment descending.
	ListAgentAggregates(ctx context.Context) ([]*AgentAggregate, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
