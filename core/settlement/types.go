package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus tracks a task through the settlement pipeline.
type TaskStatus string

const (
	TaskOpen           TaskStatus = "OPEN"
	TaskJudging        TaskStatus = "JUDGING"
	TaskPaymentPending TaskStatus = "PAYMENT_PENDING"
	TaskCompleted      TaskStatus = "COMPLETED"
	TaskCancelled      TaskStatus = "CANCELLED"
)

// Terminal reports whether a status admits no further transitions
// other than PAYMENT_PENDING -> COMPLETED.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// SubmissionType describes the payload a contributor hands in.
type SubmissionType string

const (
	SubmissionLink  SubmissionType = "LINK"
	SubmissionImage SubmissionType = "IMAGE"
	SubmissionText  SubmissionType = "TEXT"
)

// Task is a funded unit of work with a reward, deadline, and category.
type Task struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         TaskStatus      `json:"status"`
	Reward         decimal.Decimal `json:"reward"` // smallest ledger units
	Deadline       time.Time       `json:"deadline"`
	Category       string          `json:"category"`
	SubmissionType SubmissionType  `json:"submission_type"`
	CreatorID      string          `json:"creator_id"`
	CreatorWallet  string          `json:"creator_wallet,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Submission is one contributor's entry to a task.
type Submission struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	SubmitterID     string         `json:"submitter_id"`
	SubmitterWallet string         `json:"submitter_wallet,omitempty"`
	Content         string         `json:"content"` // URL, text body, or image reference
	Type            SubmissionType `json:"type"`
	Score           *int           `json:"score,omitempty"` // 0-100, set by judging
	AIReasoning     string         `json:"ai_reasoning,omitempty"`
	IsWinner        bool           `json:"is_winner"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EscrowType distinguishes reward custody from reward release.
type EscrowType string

const (
	EscrowLock    EscrowType = "LOCK"
	EscrowRelease EscrowType = "RELEASE"
)

// EscrowStatus tracks an escrow transaction attempt.
type EscrowStatus string

const (
	EscrowPending   EscrowStatus = "PENDING"
	EscrowConfirmed EscrowStatus = "CONFIRMED"
	EscrowFailed    EscrowStatus = "FAILED"
)

// EscrowTransaction records one custody movement for a task. A task has one
// LOCK row and at most one current RELEASE row; payout retries update the
// RELEASE row in place rather than inserting another.
type EscrowTransaction struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	Type        EscrowType      `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	FromWallet  string          `json:"from_wallet"`
	ToWallet    string          `json:"to_wallet"`
	Status      EscrowStatus    `json:"status"`
	TxSignature string          `json:"tx_signature,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// BalanceDelta is one account's balance change within a ledger transaction.
type BalanceDelta struct {
	Account string          `json:"account"`
	Delta   decimal.Decimal `json:"delta"`
}

// TransactionInfo is the parsed view of a ledger transaction.
type TransactionInfo struct {
	Signature string         `json:"signature"`
	Found     bool           `json:"found"`
	Erred     bool           `json:"erred"`
	Timestamp time.Time      `json:"timestamp"`
	Deltas    []BalanceDelta `json:"deltas"`
}

// TransferResult is the outcome of a ledger transfer call.
type TransferResult struct {
	Signature string `json:"signature"`
}

// LedgerClient is the narrow contract the pipeline requires from the external
// ledger. Calls have bounded latency; a timeout is treated as a failure.
type LedgerClient interface {
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (TransferResult, error)
	Transaction(ctx context.Context, signature string) (TransactionInfo, error)
}

// SubmissionScore is one submission's judged result.
type SubmissionScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Verdict is a complete judging result: one winner and a score per submission.
type Verdict struct {
	WinnerID string                     `json:"winner_id"`
	Scores   map[string]SubmissionScore `json:"scores"`
	Fallback bool                       `json:"fallback"`
}

// EvaluationRequest carries everything a scoring call needs. Attachments are
// keyed by submission ID and only present on the multimodal path.
type EvaluationRequest struct {
	Task        Task
	Rubric      Rubric
	Submissions []Submission
	Attachments map[string][]byte
}

// ScoringClient is the contract with the external AI scoring service.
type ScoringClient interface {
	GenerateRubric(ctx context.Context, title, description string) (Rubric, error)
	Evaluate(ctx context.Context, req EvaluationRequest) (Verdict, error)
}
