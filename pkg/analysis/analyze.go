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

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/model"
	"github.com/sells-group/mapmind/internal/resilience"
	"github.com/sells-group/mapmind/internal/selection"
)

// Error is a non-2xx response from the service.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis: status %d: %s", e.StatusCode, e.Message)
}

// Message returns the user-facing text for err: the service detail when the
// service rejected the request, the fallback otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}

type areaRequest struct {
	Longitude         float64 `json:"longitude"`
	Latitude          float64 `json:"latitude"`
	Radius            float64 `json:"radius"`
	IncludeFactors    bool    `json:"include_factors"`
	IncludeComparison bool    `json:"include_comparison"`
}

// errorBody covers both the plain {"detail": "..."} shape and validation
// errors where detail is a list of objects.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// Analyze posts the selection and decodes the result.
func (c *client) Analyze(ctx context.Context, req selection.Request) (*model.AnalysisResult, error) {
	if req.RadiusKm <= 0 {
		req.RadiusKm = selection.DefaultRadiusKm
	}
	body, err := json.Marshal(areaRequest{
		Longitude:         req.Lng,
		Latitude:          req.Lat,
		Radius:            req.RadiusKm,
		IncludeFactors:    c.includeFactors,
		IncludeComparison: c.includeComparison,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: encode request")
	}

	zap.L().Info("analysis: requesting area",
		zap.Float64("lng", req.Lng),
		zap.Float64("lat", req.Lat),
		zap.Float64("radius_km", req.RadiusKm),
	)
	return resilience.Retry(ctx, c.backoff, "analysis.analyze_area", func(ctx context.Context) (*model.AnalysisResult, error) {
		return c.post(ctx, body)
	})
}

func (c *client) post(ctx context.Context, body []byte) (*model.AnalysisResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "analysis: rate limit")
	}

	reqURL := strings.TrimRight(c.baseURL, "/") + "/analyze-area"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "analysis: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "analysis: request")
		}
		return nil, resilience.Transient(eris.Wrap(err, "analysis: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: detailOf(raw)}
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "analysis: parse response")
	}
	return &result, nil
}

func detailOf(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || len(eb.Detail) == 0 {
		return FallbackMessage
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return FallbackMessage
		}
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return FallbackMessage
}
