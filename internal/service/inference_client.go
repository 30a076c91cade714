package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/invigilo/invigilo-backend/internal/config"
)

// ErrInferenceUnavailable is returned when the inference service times out or
// answers with a non-2xx status. Distinct from a negative match, which is a
// successful response.
var ErrInferenceUnavailable = errors.New("inference service unavailable")

// InferenceClient is the synchronous HTTP client for identity verification.
// Everything else the inference service does flows through the message bus.
type InferenceClient struct {
	baseURL string
	http    *http.Client
}

// NewInferenceClient creates a client bounded by the configured timeout.
func NewInferenceClient(cfg *config.Config) *InferenceClient {
	return &InferenceClient{
		baseURL: cfg.InferenceURL,
		http:    &http.Client{Timeout: cfg.InferenceTimeout},
	}
}

type verifyIdentityRequest struct {
	LiveSelfieBase64 string `json:"live_selfie_base64"`
	StudentID        string `json:"student_id"`
}

type verifyIdentityResponse struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Message    *string `json:"message,omitempty"`
}

// VerifyIdentity posts the live selfie for matching against the student's
// stored profile. Timeouts and non-2xx statuses surface as
// ErrInferenceUnavailable so callers can return a retriable failure.
func (c *InferenceClient) VerifyIdentity(ctx context.Context, studentID, selfieBase64 string) (match bool, confidence float64, err error) {
	body, err := json.Marshal(verifyIdentityRequest{
		LiveSelfieBase64: selfieBase64,
		StudentID:        studentID,
	})
	if err != nil {
		return false, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/ai/verify-identity", bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, 0, fmt.Errorf("%w: status %d", ErrInferenceUnavailable, resp.StatusCode)
	}

	var out verifyIdentityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, 0, fmt.Errorf("%w: decode response: %v", ErrInferenceUnavailable, err)
	}
	return out.Match, out.Confidence, nil
}
