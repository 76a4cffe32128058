package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "callinsights-server/pkg/errors"
)

// MemoryStore provides an in-memory implementation of Store.
// It is suitable for development and testing, but not for production as all
// records are lost when the service restarts.
type MemoryStore struct {
	calls      map[string]*CallRecord
	aggregates map[string]*AgentAggregate
	mutex      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:      make(map[string]*CallRecord),
		aggregates: make(map[string]*AgentAggregate),
	}
}

// CreateCall inserts a new call record
func (m *MemoryStore) CreateCall(ctx context.Context, record *CallRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.calls[record.CallID]; exists {
		return pkgerrors.Wrap(pkgerrors.ErrCallAlreadyExists, "creating call record").
			WithField("call_id", record.CallID)
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	m.calls[record.CallID] = copyCallRecord(record)
	return nil
}

// GetCall retrieves a call record by its public call identifier
func (m *MemoryStore) GetCall(ctx context.Context, callID string) (*CallRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	record, exists := m.calls[callID]
	if !exists {
		return nil, pkgerrors.NewCallNotFound(callID)
	}

	return copyCallRecord(record), nil
}

// ListCalls returns a filtered page of call records, newest first
func (m *MemoryStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var matched []*CallRecord
	for _, record := range m.calls {
		if matchesFilter(record, filter) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].CallID < matched[j].CallID
		}
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]*CallRecord, 0, end-offset)
	for _, record := range matched[offset:end] {
		page = append(page, copyCallRecord(record))
	}

	return page, total, nil
}

// ListAllCalls returns the full corpus ordered by call identifier
func (m *MemoryStore) ListAllCalls(ctx context.Context) ([]*CallRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	records := make([]*CallRecord, 0, len(m.calls))
	for _, record := range m.calls {
		records = append(records, copyCallRecord(record))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CallID < records[j].CallID
	})

	return records, nil
}

// UpdateInsights replaces a record's derived fields as a unit
func (m *MemoryStore) UpdateInsights(ctx context.Context, callID string, insights CallInsights) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.calls[callID]
	if !exists {
		return pkgerrors.NewCallNotFound(callID)
	}

	record.AgentTalkRatio = insights.AgentTalkRatio
	record.CustomerSentimentScore = insights.CustomerSentimentScore
	record.Embedding = append([]byte(nil), insights.Embedding...)
	record.UpdatedAt = time.Now().UTC()

	return nil
}

// UpsertAgentAggregate writes one agent's recomputed aggregate
func (m *MemoryStore) UpsertAgentAggregate(ctx context.Context, aggregate *AgentAggregate) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if aggregate.ComputedAt.IsZero() {
		aggregate.ComputedAt = time.Now().UTC()
	}

	copied := *aggregate
	m.aggregates[aggregate.AgentID] = &copied
	return nil
}

// ListAgentAggregates returns all aggregates, best average sentiment first
func (m *MemoryStore) ListAgentAggregates(ctx context.Context) ([]*AgentAggregate, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	aggregates := make([]*AgentAggregate, 0, len(m.aggregates))
	for _, agg := range m.aggregates {
		copied := *agg
		aggregates = append(aggregates, &copied)
	}

	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].AvgSentiment == aggregates[j].AvgSentiment {
			return aggregates[i].AgentID < aggregates[j].AgentID
		}
		return aggregates[i].AvgSentiment > aggregates[j].AvgSentiment
	})

	return aggregates, nil
}

// Ping always succeeds for the in-memory store
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}

func matchesFilter(record *CallRecord, filter CallFilter) bool {
	if filter.AgentID != "" && record.AgentID != filter.AgentID {
		return false
	}
	if filter.FromDate != nil && record.StartTime.Before(*filter.FromDate) {
		return false
	}
	if filter.ToDate != nil && record.StartTime.After(*filter.ToDate) {
		return false
	}
	if filter.MinSentiment != nil && record.CustomerSentimentScore < *filter.MinSentiment {
		return false
	}
	if filter.MaxSentiment != nil && record.CustomerSentimentScore > *filter.MaxSentiment {
		return false
	}
	return true
}

// copyCallRecord returns a deep copy so callers cannot mutate stored state
func copyCallRecord(record *CallRecord) *CallRecord {
	copied := *record
	copied.Embedding = append([]byte(nil), record.Embedding...)
	return &copied
}
