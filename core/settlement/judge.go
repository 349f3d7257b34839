package settlement

import (
	"context"
	"hash/fnv"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	maxScore          = 100
	fallbackReasoning = "AI judging unavailable or failed; winner selected by deterministic fallback"
	soloReasoning     = "Only submission received; wins by default"
)

// JudgingEngine scores a task's submissions and picks exactly one winner.
// Judge always terminates with a usable verdict: scoring failures, malformed
// responses, and timeouts all resolve through the deterministic fallback.
type JudgingEngine struct {
	scoring     ScoringClient
	enricher    *LinkEnricher
	httpClient  *http.Client
	callTimeout time.Duration
	maxImage    int64
}

// NewJudgingEngine creates a judging engine. A nil scoring client is legal
// and routes every multi-submission task through the fallback.
func NewJudgingEngine(scoring ScoringClient, enricher *LinkEnricher, callTimeout time.Duration) *JudgingEngine {
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &JudgingEngine{
		scoring:     scoring,
		enricher:    enricher,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		callTimeout: callTimeout,
		maxImage:    4 * 1024 * 1024,
	}
}

// Judge produces a verdict for the task. The caller persists it; the engine
// itself has no side effects on the store.
func (e *JudgingEngine) Judge(ctx context.Context, task Task, subs []Submission) Verdict {
	if len(subs) == 0 {
		return Verdict{}
	}

	// Exactly one submission wins outright, no scoring call.
	if len(subs) == 1 {
		return Verdict{
			WinnerID: subs[0].ID,
			Scores: map[string]SubmissionScore{
				subs[0].ID: {Score: maxScore, Reasoning: soloReasoning},
			},
		}
	}

	if e.scoring == nil {
		return e.fallbackVerdict(task, subs)
	}

	rubric := NewRubricSource(task, e.scoring).Select(ctx)
	candidates := e.enrichAll(ctx, subs)

	req := EvaluationRequest{
		Task:        task,
		Rubric:      rubric,
		Submissions: candidates,
	}
	if hasImages(candidates) {
		req.Attachments = e.fetchAttachments(ctx, candidates)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	verdict, err := e.scoring.Evaluate(callCtx, req)
	if err != nil {
		log.Printf("scoring call failed for task %s: %v", task.ID, err)
		return e.fallbackVerdict(task, subs)
	}
	if !validVerdict(verdict, subs) {
		log.Printf("scoring response for task %s rejected: winner %q not in candidate set", task.ID, verdict.WinnerID)
		return e.fallbackVerdict(task, subs)
	}
	return normalizeVerdict(verdict, subs)
}

// enrichAll applies link enrichment where configured. The originals are
// never mutated.
func (e *JudgingEngine) enrichAll(ctx context.Context, subs []Submission) []Submission {
	out := make([]Submission, len(subs))
	copy(out, subs)
	if e.enricher == nil {
		return out
	}
	for i := range out {
		out[i].Content = e.enricher.Enrich(ctx, out[i])
	}
	return out
}

// fetchAttachments pulls image bytes for image submissions whose content is
// a fetchable URL. Missing attachments degrade that submission to its text
// metadata; they never block judging.
func (e *JudgingEngine) fetchAttachments(ctx context.Context, subs []Submission) map[string][]byte {
	attachments := make(map[string][]byte)
	for _, sub := range subs {
		if sub.Type != SubmissionImage {
			continue
		}
		link := strings.TrimSpace(sub.Content)
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			continue
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			log.Printf("image fetch failed for submission %s: %v", sub.ID, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			log.Printf("image fetch for submission %s returned status %d", sub.ID, resp.StatusCode)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxImage))
		resp.Body.Close()
		if err != nil || len(data) == 0 {
			continue
		}
		attachments[sub.ID] = data
	}
	return attachments
}

// fallbackVerdict picks a pseudo-random winner seeded from the task ID, so
// repeated passes over the same task agree. The winner takes the maximum
// score and everyone else a lower pseudo-random one.
func (e *JudgingEngine) fallbackVerdict(task Task, subs []Submission) Verdict {
	h := fnv.New64a()
	h.Write([]byte(task.ID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	winner := subs[rng.Intn(len(subs))]
	scores := make(map[string]SubmissionScore, len(subs))
	for _, sub := range subs {
		if sub.ID == winner.ID {
			scores[sub.ID] = SubmissionScore{Score: maxScore, Reasoning: fallbackReasoning}
			continue
		}
		scores[sub.ID] = SubmissionScore{Score: 40 + rng.Intn(50), Reasoning: fallbackReasoning}
	}
	return Verdict{WinnerID: winner.ID, Scores: scores, Fallback: true}
}

func hasImages(subs []Submission) bool {
	for _, sub := range subs {
		if sub.Type == SubmissionImage {
			return true
		}
	}
	return false
}

// validVerdict requires the declared winner to be a member of the candidate
// set. Anything else means the response cannot be trusted.
func validVerdict(v Verdict, subs []Submission) bool {
	if v.WinnerID == "" {
		return false
	}
	for _, sub := range subs {
		if sub.ID == v.WinnerID {
			return true
		}
	}
	return false
}

// normalizeVerdict fills score gaps and clamps out-of-range values so the
// batch write downstream always has a complete map.
func normalizeVerdict(v Verdict, subs []Submission) Verdict {
	if v.Scores == nil {
		v.Scores = make(map[string]SubmissionScore, len(subs))
	}
	for _, sub := range subs {
		entry, ok := v.Scores[sub.ID]
		if !ok {
			entry = SubmissionScore{Score: 0, Reasoning: "no score returned"}
		}
		if entry.Score < 0 {
			entry.Score = 0
		}
		if entry.Score > maxScore {
			entry.Score = maxScore
		}
		v.Scores[sub.ID] = entry
	}
	return v
}
