// Package classifier implements the Classifier Client (C8): a pure external
// probability-oracle HTTP call. It is deliberately the single component in
// the pipeline allowed to fail silently -- per spec.md 4.8, an unreachable
// or slow classifier must never fail a scan, it just means the verdict
// falls back to the rule-based signals alone.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/evmsentinel/txfirewall/features"
)

// DefaultTimeout is the per-request cap; a single bounded retry can run
// this twice before giving up, never indefinitely.
const DefaultTimeout = 2 * time.Second

// Prediction is the classifier's response shape.
type Prediction struct {
	ScamProbability    float64    `json:"scam_probability"`
	Uncertainty        float64    `json:"uncertainty"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	Verdict            string     `json:"verdict"`
	Reason             string     `json:"reason"`
	ModelVersion       string     `json:"model_version"`
	RiskBand           string     `json:"risk_band"`
}

type requestBody struct {
	Features features.Vector `json:"features"`
}

// Client posts a feature vector to the probability oracle over plain HTTP
// and JSON -- the standard library covers this well enough on its own that
// pulling in a third-party HTTP client would add nothing (see DESIGN.md).
type Client struct {
	httpClient *http.Client
	endpoint   string
	log        *zap.Logger
}

func NewClient(endpoint string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		endpoint:   endpoint,
		log:        log,
	}
}

// Classify returns nil, nil on any failure -- network error, non-2xx
// response, malformed body, or retry exhaustion -- never an error the
// caller has to handle specially. A single retry is attempted via
// cenkalti/backoff's bounded exponential policy before giving up.
func (c *Client) Classify(ctx context.Context, v features.Vector) *Prediction {
	body, err := json.Marshal(requestBody{Features: v})
	if err != nil {
		c.log.Warn("classifier: failed to marshal feature vector", zap.Error(err))
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	policy = backoff.WithContext(policy, ctx)

	var pred *Prediction
	op := func() error {
		p, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		pred = p
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		c.log.Debug("classifier unreachable, scan continues without it", zap.Error(err))
		return nil
	}
	return pred
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errHTTPStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var pred Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

type errHTTPStatus int

func (e errHTTPStatus) Error() string {
	return http.StatusText(int(e))
}
