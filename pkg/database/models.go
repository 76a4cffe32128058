package database

import (
	"time"
)

// CallRecord represents one durably stored analyzed sales call.
//
// The raw fields (call id, participants, transcript, temporal data) are
// immutable after ingestion. The derived fields (talk ratio, sentiment,
// embedding) are replaced as a trio by UpdateInsights and never partially.
type CallRecord struct {
	ID              string    `db:"id" json:"id"`
	CallID          string    `db:"call_id" json:"call_id"`
	AgentID         string    `db:"agent_id" json:"agent_id"`
	CustomerID      string    `db:"customer_id" json:"customer_id"`
	Language        string    `db:"language" json:"language"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	Transcript      string    `db:"transcript" json:"transcript"`

	// Derived insights. Embedding is an opaque blob of little-endian float32
	// values; its dimensionality is fixed per deployment.
	AgentTalkRatio         float64 `db:"agent_talk_ratio" json:"agent_talk_ratio"`
	CustomerSentimentScore float64 `db:"customer_sentiment_score" json:"customer_sentiment_score"`
	Embedding              []byte  `db:"embedding" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CallInsights is the trio of derived fields written back by the engine
type CallInsights struct {
	AgentTalkRatio         float64 `json:"agent_talk_ratio"`
	CustomerSentimentScore float64 `json:"customer_sentiment_score"`
	Embedding              []byte  `json:"-"`
}

// AgentAggregate holds per-agent averages over the current call corpus.
// Aggregates are rebuilt wholesale by every recompute run and are always
// safe to discard.
type AgentAggregate struct {
	AgentID      string    `db:"agent_id" json:"agent_id"`
	AvgSentiment float64   `db:"avg_sentiment" json:"avg_sentiment"`
	AvgTalkRatio float64   `db:"avg_talk_ratio" json:"avg_talk_ratio"`
	CallCount    int       `db:"call_count" json:"call_count"`
	ComputedAt   time.Time `db:"computed_at" json:"computed_at"`
}

// CallFilter narrows ListCalls results
type CallFilter struct {
	AgentID      string
	FromDate     *time.Time
	ToDate       *time.Time
	MinSentiment *float64
	MaxSentiment *float64
	Limit        int
	Offset       int
}
