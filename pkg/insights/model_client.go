package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	pkgerrors "callinsights-server/pkg/errors"
	"callinsights-server/pkg/metrics"
)

// ModelClient talks to the external inference sidecar over HTTP. It
// satisfies both Embedder and SentimentScorer; the engine degrades to the
// fallback implementations when a call fails after retries.
type ModelClient struct {
	baseURL    string
	dimension  int
	maxRetries uint64
	httpClient *http.Client
	logger     *logrus.Entry
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type sentimentRequest struct {
	Text string `json:"text"`
}

type sentimentResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewModelClient creates a client for the configured inference service
func NewModelClient(cfg config.InsightsConfig, logger *logrus.Logger) *ModelClient {
	return &ModelClient{
		baseURL:    cfg.ModelServiceURL,
		dimension:  cfg.EmbeddingDim,
		maxRetries: uint64(cfg.ModelMaxRetries),
		httpClient: &http.Client{Timeout: cfg.ModelTimeout},
		logger:     logger.WithField("component", "model_client"),
	}
}

// Dimension reports the embedding dimensionality
func (c *ModelClient) Dimension() int {
	return c.dimension
}

// Embed requests an embedding from the inference service
func (c *ModelClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.post(ctx, "/embed", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding) != c.dimension {
		return nil, pkgerrors.Wrap(pkgerrors.ErrEmbeddingDimension, "model service returned unexpected dimension").
			WithFields(map[string]interface{}{
				"expected": c.dimension,
				"actual":   len(resp.Embedding),
			})
	}

	return resp.Embedding, nil
}

// Score requests a sentiment classification and maps it to [-1, 1]
func (c *ModelClient) Score(ctx context.Context, text string) (float64, error) {
	var resp sentimentResponse
	if err := c.post(ctx, "/sentiment", sentimentRequest{Text: text}, &resp); err != nil {
		return 0, err
	}

	switch resp.Label {
	case "positive":
		return clamp(resp.Score, -1, 1), nil
	case "negative":
		return clamp(-resp.Score, -1, 1), nil
	case "neutral":
		return 0, nil
	default:
		return 0, pkgerrors.NewModelUnavailable(fmt.Sprintf("unknown sentiment label %q", resp.Label))
	}
}

// post issues one JSON request with exponential backoff retries. Client
// errors (4xx) are terminal; transport failures and 5xx are retried.
func (c *ModelClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode model request: %w", err)
	}

	operation := func() error {
		start := time.Now()
		status, err := c.doRequest(ctx, path, body, out)
		metrics.RecordModelRequest(path, status, time.Since(start))
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("Model service request failed after retries")
		return pkgerrors.Wrap(pkgerrors.ErrModelUnavailable, "model service request failed").
			WithField("path", path)
	}

	return nil
}

func (c *ModelClient) doRequest(ctx context.Context, path string, body []byte, out interface{}) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "error", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "error", err
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%d", resp.StatusCode)

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return status, fmt.Errorf("model service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return status, backoff.Permanent(fmt.Errorf("model service returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return status, backoff.Permanent(fmt.Errorf("failed to decode model response: %w", err))
	}

	return status, nil
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
