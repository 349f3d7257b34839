package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "starboard-backend/core/settlement"
	_ "starboard-backend/docs"
	"starboard-backend/handlers"
	"starboard-backend/ledger"
	"starboard-backend/middleware"
	smw "starboard-backend/middleware/settlement"
	"starboard-backend/scoring"
	"starboard-backend/services"
	store "starboard-backend/storage/settlement"
)

type config struct {
	Port              string
	StoreDriver       string
	PGDSN             string
	Treasury          string
	LedgerProvider    string
	LedgerAPIBase     string
	ScoringProvider   string
	ScoringAPIBase    string
	ScoringAPIKey     string
	JudgeTimeout      time.Duration
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	TransferAttempts  int
	RetryBackoff      time.Duration
}

func loadConfig() config {
	sweepInterval := 180 * time.Second
	if raw := os.Getenv("STARBOARD_SWEEP_INTERVAL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			sweepInterval = time.Duration(v) * time.Second
		}
	}

	reconcileInterval := 300 * time.Second
	if raw := os.Getenv("STARBOARD_RECONCILE_INTERVAL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			reconcileInterval = time.Duration(v) * time.Second
		}
	}

	judgeTimeout := 60 * time.Second
	if raw := os.Getenv("STARBOARD_JUDGE_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			judgeTimeout = time.Duration(v) * time.Second
		}
	}

	attempts := 3
	if raw := os.Getenv("STARBOARD_TRANSFER_ATTEMPTS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			attempts = v
		}
	}

	backoff := 2 * time.Second
	if raw := os.Getenv("STARBOARD_RETRY_BACKOFF_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			backoff = time.Duration(v) * time.Second
		}
	}

	return config{
		Port:              envDefault("STARBOARD_PORT", "3001"),
		StoreDriver:       envDefault("STARBOARD_STORE_DRIVER", "memory"),
		PGDSN:             os.Getenv("STARBOARD_PG_DSN"),
		Treasury:          envDefault("STARBOARD_TREASURY_ACCOUNT", "treasury"),
		LedgerProvider:    envDefault("STARBOARD_LEDGER_PROVIDER", "mock"), // mock | http
		LedgerAPIBase:     os.Getenv("STARBOARD_LEDGER_API_BASE"),
		ScoringProvider:   envDefault("STARBOARD_SCORING_PROVIDER", "mock"), // mock | http
		ScoringAPIBase:    os.Getenv("STARBOARD_SCORING_API_BASE"),
		ScoringAPIKey:     os.Getenv("STARBOARD_SCORING_API_KEY"),
		JudgeTimeout:      judgeTimeout,
		SweepInterval:     sweepInterval,
		ReconcileInterval: reconcileInterval,
		TransferAttempts:  attempts,
		RetryBackoff:      backoff,
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	var st smw.Store
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("STARBOARD_PG_DSN required when STARBOARD_STORE_DRIVER=postgres")
		}
		pg, err := store.NewPGStore(ctx, cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
		st = pg
	default:
		st = store.NewMemoryStore()
	}
	defer st.Close()

	ledgerClient := ledger.New(cfg.LedgerProvider, cfg.LedgerAPIBase)
	scoringClient := scoring.New(cfg.ScoringProvider, cfg.ScoringAPIBase, cfg.ScoringAPIKey)

	judge := core.NewJudgingEngine(scoringClient, core.NewLinkEnricher(10*time.Second), cfg.JudgeTimeout)
	escrow := core.NewEscrowEngine(ledgerClient, st, core.EscrowConfig{
		Treasury:         cfg.Treasury,
		TransferAttempts: cfg.TransferAttempts,
		RetryBackoff:     cfg.RetryBackoff,
	})
	pipeline := smw.NewPipeline(st, judge, escrow)
	scheduler := smw.NewDeadlineScheduler(st, pipeline)
	taskService := smw.NewTaskService(st, escrow, scheduler, cfg.Treasury)

	// Timers are in-memory; rebuild them from the store on every start.
	if err := scheduler.Restore(ctx); err != nil {
		log.Fatalf("failed to restore settlement timers: %v", err)
	}
	smw.StartDeadlineSweep(ctx, st, pipeline, cfg.SweepInterval)
	smw.StartPayoutReconciler(ctx, st, pipeline, cfg.ReconcileInterval)
	log.Printf("deadline sweep enabled (interval=%s), payout reconciler enabled (interval=%s)", cfg.SweepInterval, cfg.ReconcileInterval)

	healthHandler := handlers.NewHealthHandler(services.NewHealthService())
	qrHandler := handlers.NewQRCodeHandler(services.NewQRCodeService(), cfg.Treasury)
	settlementHandler := handlers.NewSettlementHandler(st, taskService, pipeline)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/api/deposit/qr", qrHandler.HandleDepositQR)
	mux.HandleFunc("/api/tasks", settlementHandler.HandleTasks)
	mux.HandleFunc("/api/tasks/", settlementHandler.HandleTaskByID)
	mux.HandleFunc("/api/reconcile", settlementHandler.HandleReconcile)
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.Chain(mux,
		middleware.Recovery,
		middleware.Logging,
		middleware.SecurityHeaders,
		middleware.CORS,
		middleware.RateLimit(120, time.Minute),
	)

	log.Printf("Starboard settlement daemon starting on :%s (driver=%s, ledger=%s, scoring=%s)",
		cfg.Port, cfg.StoreDriver, cfg.LedgerProvider, cfg.ScoringProvider)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
