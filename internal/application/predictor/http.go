package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/regimed/regimed/internal/domain/regime"
)

// HTTPClassifier calls an external model-serving endpoint. The model is
// trained, versioned, and validated entirely outside this repository;
// this core never feeds its own output back as training labels.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier builds a classifier against url. Timeouts are the
// adapter's responsibility; the client here carries none of its own.
func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{url: url, client: &http.Client{}}
}

// Predict implements Classifier.
func (c *HTTPClassifier) Predict(ctx context.Context, f Features) (regime.Label, float64, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return regime.Choppy, 0, fmt.Errorf("marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return regime.Choppy, 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return regime.Choppy, 0, fmt.Errorf("predict call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return regime.Choppy, 0, fmt.Errorf("predict call: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return regime.Choppy, 0, fmt.Errorf("decode prediction: %w", err)
	}

	label, err := regime.ParseLabel(out.Label)
	if err != nil {
		return regime.Choppy, 0, fmt.Errorf("prediction: %w", err)
	}
	return label, out.Confidence, nil
}
