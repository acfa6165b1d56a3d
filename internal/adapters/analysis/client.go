//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source=client.go -destination=../../mocks/mock_analyzer.go -package=mocks

// Package analysis talks to the external frame-analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAnalysisFailed covers transport errors and server-side failures.
	ErrAnalysisFailed = errors.New("analysis service failed")
	// ErrFrameRejected means the service answered but refused the frame.
	ErrFrameRejected = errors.New("frame rejected")
)

type Analyzer interface {
	AnalyzeFrame(ctx context.Context, sid domain.SessionID, frame string) (json.RawMessage, error)
}

type frameRequest struct {
	Frame     string           `json:"frame"`
	SessionID domain.SessionID `json:"session_id"`
}

type frameResponse struct {
	Success  bool            `json:"success"`
	Analysis json.RawMessage `json:"analysis"`
	Error    string          `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

var _ Analyzer = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// AnalyzeFrame posts one base64 frame and returns the service's analysis
// object untouched.
func (c *Client) AnalyzeFrame(ctx context.Context, sid domain.SessionID, frame string) (json.RawMessage, error) {
	body, err := json.Marshal(frameRequest{Frame: frame, SessionID: sid})
	if err != nil {
		return nil, fmt.Errorf("encode frame request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze-frame", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrAnalysisFailed, err)
	}
	log.Debug().Str("module", "adapters.analysis").Str("session_id", string(sid)).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("analyze-frame")

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrAnalysisFailed, resp.StatusCode)
	}

	var out frameResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrAnalysisFailed, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: %s", ErrFrameRejected, out.Error)
	}
	if len(out.Analysis) == 0 {
		return nil, fmt.Errorf("%w: response without analysis", ErrAnalysisFailed)
	}
	return out.Analysis, nil
}
