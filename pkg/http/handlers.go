package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/database"
	pkgerrors "callinsights-server/pkg/errors"
	"callinsights-server/pkg/insights"
)

const maxListLimit = 100

// AnalyzeRequest asks for ad-hoc analysis without persisting anything
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// AnalyzeResponse carries the derived trio for an ad-hoc transcript
type AnalyzeResponse struct {
	EmbeddingDim int     `json:"embedding_dim"`
	Sentiment    float64 `json:"sentiment"`
	TalkRatio    float64 `json:"talk_ratio"`
}

// CreateCallRequest ingests one call transcript
type CreateCallRequest struct {
	CallID          string    `json:"call_id"`
	AgentID         string    `json:"agent_id"`
	CustomerID      string    `json:"customer_id"`
	Language        string    `json:"language"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript"`
}

// ListCallsResponse is a filtered page of calls
type ListCallsResponse struct {
	Calls  []*database.CallRecord `json:"calls"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// AnalyzeHandler computes insights for a transcript without storing it
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, pkgerrors.NewInvalidInput("request body must be JSON with a text field"))
		return
	}
	if req.Text == "" {
		s.errorResponse(w, pkgerrors.NewInvalidInput("text is required"))
		return
	}

	result := s.engine.Analyze(r.Context(), req.Text, insights.TriggerAnalyze)

	s.writeJSON(w, http.StatusOK, AnalyzeResponse{
		EmbeddingDim: s.engine.Dimension(),
		Sentiment:    result.CustomerSentimentScore,
		TalkRatio:    result.AgentTalkRatio,
	})
}

// CreateCallHandler ingests a call: validates, analyzes, and stores the
// record with its initial insights
func (s *Server) CreateCallHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, pkgerrors.NewInvalidInput("request body must be valid JSON"))
		return
	}

	if err := validateCreateCall(&req); err != nil {
		s.errorResponse(w, err)
		return
	}

	result := s.engine.Analyze(r.Context(), req.Transcript, insights.TriggerIngest)

	record := &database.CallRecord{
		CallID:                 req.CallID,
		AgentID:                req.AgentID,
		CustomerID:             req.CustomerID,
		Language:               req.Language,
		StartTime:              req.StartTime.UTC(),
		DurationSeconds:        req.DurationSeconds,
		Transcript:             req.Transcript,
		AgentTalkRatio:         result.AgentTalkRatio,
		CustomerSentimentScore: result.CustomerSentimentScore,
		Embedding:              insights.EncodeVector(result.Embedding),
	}

	if err := s.store.CreateCall(r.Context(), record); err != nil {
		s.errorResponse(w, err)
		return
	}

	if err := s.publisher.PublishInsightsUpdated(r.Context(), record.CallID, insights.TriggerIngest); err != nil {
		s.logger.WithError(err).WithField("call_id", record.CallID).Warn("Failed to publish insight event")
	}

	s.logger.WithFields(logrus.Fields{
		"call_id":  record.CallID,
		"agent_id": record.AgentID,
	}).Info("Call ingested")

	s.writeJSON(w, http.StatusCreated, record)
}

// ListCallsHandler returns a filtered page of calls
func (s *Server) ListCallsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCallFilter(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	calls, total, err := s.store.ListCalls(r.Context(), filter)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if calls == nil {
		calls = []*database.CallRecord{}
	}

	s.writeJSON(w, http.StatusOK, ListCallsResponse{
		Calls:  calls,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetCallHandler returns one call by its identifier
func (s *Server) GetCallHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetCall(r.Context(), r.PathValue("call_id"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// RecommendationsHandler returns similar calls and coaching nudges
func (s *Server) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.recommender.Recommend(r.Context(), r.PathValue("call_id"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// AgentAnalyticsHandler returns per-agent aggregates
func (s *Server) AgentAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	aggregates, err := s.store.ListAgentAggregates(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if aggregates == nil {
		aggregates = []*database.AgentAggregate{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"agents": aggregates})
}

// RecomputeHandler triggers a manual full-corpus recompute. An already
// running recompute is reported, not treated as a failure.
func (s *Server) RecomputeHandler(w http.ResponseWriter, r *http.Request) {
	// The run outlives the request; the scheduler runs it under its own
	// lifecycle context
	if err := s.scheduler.TriggerRecompute(); err != nil {
		if pkgerrors.IsErrorType(err, pkgerrors.ErrRecomputeInProgress) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
			return
		}
		s.errorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func validateCreateCall(req *CreateCallRequest) error {
	switch {
	case req.AgentID == "":
		return pkgerrors.NewInvalidInput("agent_id is required")
	case req.CustomerID == "":
		return pkgerrors.NewInvalidInput("customer_id is required")
	case req.Transcript == "":
		return pkgerrors.NewInvalidInput("transcript is required")
	case req.StartTime.IsZero():
		return pkgerrors.NewInvalidInput("start_time is required")
	case req.DurationSeconds < 0:
		return pkgerrors.NewInvalidInput("duration_seconds must not be negative")
	}

	if req.CallID == "" {
		req.CallID = uuid.New().String()
	}
	if req.Language == "" {
		req.Language = "en"
	}
	return nil
}

func parseCallFilter(r *http.Request) (database.CallFilter, error) {
	query := r.URL.Query()
	filter := database.CallFilter{
		AgentID: query.Get("agent_id"),
		Limit:   50,
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, pkgerrors.NewInvalidInput("limit must be a positive integer")
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, pkgerrors.NewInvalidInput("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	if raw := query.Get("from_date"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return filter, pkgerrors.NewInvalidInput("from_date must be RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &from
	}

	if raw := query.Get("to_date"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return filter, pkgerrors.NewInvalidInput("to_date must be RFC3339 or YYYY-MM-DD")
		}
		filter.ToDate = &to
	}

	if raw := query.Get("min_sentiment"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, pkgerrors.NewInvalidInput("min_sentiment must be a number")
		}
		filter.MinSentiment = &min
	}

	if raw := query.Get("max_sentiment"); raw != "" {
		max, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, pkgerrors.NewInvalidInput("max_sentiment must be a number")
		}
		filter.MaxSentiment = &max
	}

	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	pkgerrors.WriteError(w, err)
	s.logger.WithError(err).Debug("HTTP error response sent")
}
