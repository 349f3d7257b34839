package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	core "starboard-backend/core/settlement"
	"starboard-backend/ledger"
	"starboard-backend/mcp"
	smw "starboard-backend/middleware/settlement"
	"starboard-backend/scoring"
	store "starboard-backend/storage/settlement"

	"github.com/mark3labs/mcp-go/server"
)

type config struct {
	StoreDriver      string
	PGDSN            string
	Treasury         string
	LedgerProvider   string
	LedgerAPIBase    string
	ScoringProvider  string
	ScoringAPIBase   string
	ScoringAPIKey    string
	JudgeTimeout     time.Duration
	TransferAttempts int
	RetryBackoff     time.Duration
}

func loadConfig() config {
	judgeTimeout := 60 * time.Second
	if raw := os.Getenv("MCP_JUDGE_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			judgeTimeout = time.Duration(v) * time.Second
		}
	}

	attempts := 3
	if raw := os.Getenv("MCP_TRANSFER_ATTEMPTS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			attempts = v
		}
	}

	backoff := 2 * time.Second
	if raw := os.Getenv("MCP_RETRY_BACKOFF_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			backoff = time.Duration(v) * time.Second
		}
	}

	return config{
		StoreDriver:      envDefault("MCP_STORE_DRIVER", "memory"),
		PGDSN:            os.Getenv("MCP_PG_DSN"),
		Treasury:         envDefault("MCP_TREASURY_ACCOUNT", "treasury"),
		LedgerProvider:   envDefault("MCP_LEDGER_PROVIDER", "mock"), // mock | http
		LedgerAPIBase:    os.Getenv("MCP_LEDGER_API_BASE"),
		ScoringProvider:  envDefault("MCP_SCORING_PROVIDER", "mock"), // mock | http
		ScoringAPIBase:   os.Getenv("MCP_SCORING_API_BASE"),
		ScoringAPIKey:    os.Getenv("MCP_SCORING_API_KEY"),
		JudgeTimeout:     judgeTimeout,
		TransferAttempts: attempts,
		RetryBackoff:     backoff,
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
			log.Fatal("MCP_PG_DSN required when MCP_STORE_DRIVER=postgres")
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

	if err := scheduler.Restore(ctx); err != nil {
		log.Printf("timer restore incomplete: %v", err)
	}

	// Create new MCP server using mcp-go
	mcpServer := mcp.NewMCPServer(st, pipeline, taskService, escrow)

	log.Printf("Starboard MCP server starting (driver=%s, ledger=%s)", cfg.StoreDriver, cfg.LedgerProvider)
	log.Printf("Server: Starboard Settlement Server v1.0.0")

	// Start the MCP server using stdio transport
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
