// Package scoring implements the AI scoring contract against an HTTP scoring
// service, with a heuristic mock for development and tests.
package scoring

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"starboard-backend/core/settlement"
)

// New selects a scoring client by provider name.
func New(name, base, apiKey string) settlement.ScoringClient {
	switch name {
	case "http":
		return NewHTTPClient(base, apiKey)
	default:
		return NewMock()
	}
}

// HTTPClient talks to an AI scoring service over its JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient builds a client for the given scoring service base URL.
func NewHTTPClient(base, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: base,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

type rubricRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GenerateRubric asks the service to build a rubric for an unrecognized
// task category.
func (c *HTTPClient) GenerateRubric(ctx context.Context, title, description string) (settlement.Rubric, error) {
	var rubric settlement.Rubric
	if err := c.post(ctx, "/v1/rubrics", rubricRequest{Title: title, Description: description}, &rubric); err != nil {
		return settlement.Rubric{}, err
	}
	if len(rubric.Criteria) < 5 || len(rubric.Criteria) > 7 {
		return settlement.Rubric{}, fmt.Errorf("generated rubric has %d criteria, want 5-7", len(rubric.Criteria))
	}
	return rubric, nil
}

type evaluationSubmission struct {
	ID          string `json:"id"`
	SubmitterID string `json:"submitter_id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type evaluationRequest struct {
	TaskTitle       string                 `json:"task_title"`
	TaskDescription string                 `json:"task_description"`
	Category        string                 `json:"category"`
	Rubric          settlement.Rubric      `json:"rubric"`
	Submissions     []evaluationSubmission `json:"submissions"`
	Multimodal      bool                   `json:"multimodal"`
}

type evaluationResponse struct {
	WinnerID string `json:"winner_id"`
	Scores   map[string]struct {
		Score     int    `json:"score"`
		Reasoning string `json:"reasoning"`
	} `json:"scores"`
}

// Evaluate sends one scoring request covering every submission and returns
// the declared winner with per-submission scores. Image attachments ride
// along base64-encoded on the multimodal path.
func (c *HTTPClient) Evaluate(ctx context.Context, req settlement.EvaluationRequest) (settlement.Verdict, error) {
	payload := evaluationRequest{
		TaskTitle:       req.Task.Title,
		TaskDescription: req.Task.Description,
		Category:        req.Task.Category,
		Rubric:          req.Rubric,
		Multimodal:      len(req.Attachments) > 0,
	}
	for _, sub := range req.Submissions {
		entry := evaluationSubmission{
			ID:          sub.ID,
			SubmitterID: sub.SubmitterID,
			Type:        string(sub.Type),
			Content:     sub.Content,
		}
		if data, ok := req.Attachments[sub.ID]; ok {
			entry.ImageBase64 = base64.StdEncoding.EncodeToString(data)
		}
		payload.Submissions = append(payload.Submissions, entry)
	}

	var out evaluationResponse
	if err := c.post(ctx, "/v1/evaluations", payload, &out); err != nil {
		return settlement.Verdict{}, err
	}

	verdict := settlement.Verdict{
		WinnerID: out.WinnerID,
		Scores:   make(map[string]settlement.SubmissionScore, len(out.Scores)),
	}
	for id, s := range out.Scores {
		verdict.Scores[id] = settlement.SubmissionScore{Score: s.Score, Reasoning: s.Reasoning}
	}
	return verdict, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scoring call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("scoring call: status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode scoring response: %w", err)
	}
	return nil
}
