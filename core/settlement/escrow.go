package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deposit verification failures. All of them block task creation.
var (
	ErrDepositNotFound    = errors.New("deposit transaction not found on ledger")
	ErrDepositErred       = errors.New("deposit transaction failed on ledger")
	ErrDepositStale       = errors.New("deposit transaction outside freshness window")
	ErrDepositUnderfunded = errors.New("deposit below expected amount")
)

// PayoutOutcome classifies one payout pass.
type PayoutOutcome string

const (
	PayoutPaid              PayoutOutcome = "PAID"
	PayoutAlreadyPaid       PayoutOutcome = "ALREADY_PAID"
	PayoutInsufficientFunds PayoutOutcome = "INSUFFICIENT_FUNDS"
	PayoutFailed            PayoutOutcome = "FAILED"
)

// PayoutResult reports what a payout pass did and the RELEASE row it left
// behind.
type PayoutResult struct {
	Outcome   PayoutOutcome
	Signature string
	Release   EscrowTransaction
}

// Settled reports whether the task's reward is with the winner.
func (r PayoutResult) Settled() bool {
	return r.Outcome == PayoutPaid || r.Outcome == PayoutAlreadyPaid
}

// EscrowStore is the slice of persistence the escrow engine needs: reading
// and upserting the single current RELEASE row per task.
type EscrowStore interface {
	ReleaseTransaction(ctx context.Context, taskID string) (EscrowTransaction, bool, error)
	UpsertRelease(ctx context.Context, tx EscrowTransaction) error
}

// EscrowConfig tunes deposit verification and payout retry behavior.
type EscrowConfig struct {
	Treasury         string
	Tolerance        decimal.Decimal // fraction of expected amount, e.g. 0.005
	FreshnessWindow  time.Duration
	TransferAttempts int
	RetryBackoff     time.Duration
}

// EscrowEngine verifies deposits into the treasury and executes reward
// payouts with bounded retries. It owns the RELEASE row for each task and
// updates it in place so retries never duplicate ledger transfers.
type EscrowEngine struct {
	ledger LedgerClient
	store  EscrowStore
	cfg    EscrowConfig
}

// NewEscrowEngine creates an escrow engine with defaulted config values.
func NewEscrowEngine(ledger LedgerClient, store EscrowStore, cfg EscrowConfig) *EscrowEngine {
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.RequireFromString("0.005")
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 10 * time.Minute
	}
	if cfg.TransferAttempts <= 0 {
		cfg.TransferAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &EscrowEngine{ledger: ledger, store: store, cfg: cfg}
}

// VerifyDeposit checks a claimed deposit proof against the ledger. It fails
// if the transaction is missing, erred, older than the freshness window, or
// credits the treasury with less than expected minus the tolerance.
func (e *EscrowEngine) VerifyDeposit(ctx context.Context, signature string, expected decimal.Decimal) error {
	info, err := e.ledger.Transaction(ctx, signature)
	if err != nil {
		return fmt.Errorf("fetch deposit transaction: %w", err)
	}
	if !info.Found {
		return ErrDepositNotFound
	}
	if info.Erred {
		return ErrDepositErred
	}
	if time.Since(info.Timestamp) > e.cfg.FreshnessWindow {
		return ErrDepositStale
	}

	floor := expected.Mul(decimal.NewFromInt(1).Sub(e.cfg.Tolerance))
	for _, delta := range info.Deltas {
		if delta.Account == e.cfg.Treasury && delta.Delta.Cmp(floor) >= 0 {
			return nil
		}
	}
	return ErrDepositUnderfunded
}

// Payout moves the task reward to the winner's wallet. It returns an error
// only for store failures; every ledger problem resolves into an outcome the
// pipeline can map to a task status.
func (e *EscrowEngine) Payout(ctx context.Context, task Task, winnerWallet string) (PayoutResult, error) {
	existing, found, err := e.store.ReleaseTransaction(ctx, task.ID)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("load release record: %w", err)
	}
	// A confirmed RELEASE means a previous pass already paid; reverts and
	// reconciliation retries must not transfer twice.
	if found && existing.Status == EscrowConfirmed {
		return PayoutResult{Outcome: PayoutAlreadyPaid, Signature: existing.TxSignature, Release: existing}, nil
	}

	release := existing
	if !found {
		release = EscrowTransaction{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Type:      EscrowRelease,
			Amount:    task.Reward,
			CreatedAt: time.Now(),
		}
	}
	release.FromWallet = e.cfg.Treasury
	release.ToWallet = winnerWallet

	balance, err := e.ledger.Balance(ctx, e.cfg.Treasury)
	if err != nil {
		log.Printf("treasury balance check failed for task %s: %v", task.ID, err)
		return e.parkRelease(ctx, release, PayoutFailed)
	}
	if balance.Cmp(task.Reward) < 0 {
		log.Printf("treasury underfunded for task %s: have %s, need %s", task.ID, balance, task.Reward)
		return e.parkRelease(ctx, release, PayoutInsufficientFunds)
	}

	for attempt := 1; attempt <= e.cfg.TransferAttempts; attempt++ {
		result, err := e.ledger.Transfer(ctx, winnerWallet, task.Reward)
		if err == nil {
			now := time.Now()
			release.Status = EscrowConfirmed
			release.TxSignature = result.Signature
			release.ConfirmedAt = &now
			if err := e.store.UpsertRelease(ctx, release); err != nil {
				return PayoutResult{}, fmt.Errorf("persist confirmed release: %w", err)
			}
			log.Printf("paid task %s: %s to %s (sig %s)", task.ID, task.Reward, winnerWallet, result.Signature)
			return PayoutResult{Outcome: PayoutPaid, Signature: result.Signature, Release: release}, nil
		}
		log.Printf("transfer attempt %d/%d failed for task %s: %v", attempt, e.cfg.TransferAttempts, task.ID, err)
		if attempt < e.cfg.TransferAttempts {
			select {
			case <-ctx.Done():
				return e.parkRelease(context.WithoutCancel(ctx), release, PayoutFailed)
			case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return e.parkRelease(context.WithoutCancel(ctx), release, PayoutFailed)
}

// parkRelease records a not-yet-settled RELEASE row so the reconciliation
// sweep can pick the task up later.
func (e *EscrowEngine) parkRelease(ctx context.Context, release EscrowTransaction, outcome PayoutOutcome) (PayoutResult, error) {
	if outcome == PayoutInsufficientFunds {
		release.Status = EscrowPending
	} else {
		release.Status = EscrowFailed
	}
	if err := e.store.UpsertRelease(ctx, release); err != nil {
		return PayoutResult{}, fmt.Errorf("persist parked release: %w", err)
	}
	return PayoutResult{Outcome: outcome, Release: release}, nil
}
