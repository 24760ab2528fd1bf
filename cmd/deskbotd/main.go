package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/provisor-ai/deskbot/internal/agenttools"
	"github.com/provisor-ai/deskbot/internal/api"
	"github.com/provisor-ai/deskbot/internal/config"
	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/eventbus"
	"github.com/provisor-ai/deskbot/internal/llm"
	"github.com/provisor-ai/deskbot/internal/orchestrator"
	"github.com/provisor-ai/deskbot/internal/platform/azure"
	"github.com/provisor-ai/deskbot/internal/platform/servicenow"
	"github.com/provisor-ai/deskbot/internal/prompt"
	"github.com/provisor-ai/deskbot/internal/session"
	"github.com/provisor-ai/deskbot/internal/state"
	"github.com/provisor-ai/deskbot/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	platform := prompt.Platform{
		ServiceNowURL:  cfg.ServiceNowURL,
		SubscriptionID: cfg.AzureSubscriptionID,
		ResourceGroup:  cfg.AzureResourceGroup,
		DefaultRegion:  cfg.AzureRegion,
	}
	reg := agenttools.BuildRegistry(platform)
	if err := reg.Validate(); err != nil {
		log.Fatalf("registry: %v", err)
	}

	snClient, err := servicenow.NewClient(servicenow.Config{
		InstanceURL: cfg.ServiceNowURL,
		Username:    cfg.ServiceNowUser,
		Password:    cfg.ServiceNowPassword,
	})
	if err != nil {
		log.Fatalf("servicenow client: %v", err)
	}
	azClient, err := azure.NewClient(azure.Config{
		SubscriptionID: cfg.AzureSubscriptionID,
		ResourceGroup:  cfg.AzureResourceGroup,
		Token:          cfg.AzureToken,
	})
	if err != nil {
		log.Fatalf("azure client: %v", err)
	}

	provider, err := llm.NewProvider(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		log.Fatalf("llm provider: %v", err)
	}

	sessions := session.NewStore(reg.Default())
	history := convlog.New(cfg.HistoryLimit)
	bus := eventbus.NewBus()

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	store := state.NewStore(db)
	if err := store.Restore(context.Background(), sessions, history); err != nil {
		log.Printf("state restore: %v", err)
	}

	orch := &orchestrator.Orchestrator{
		Sessions:      sessions,
		Log:           history,
		Registry:      reg,
		Engine:        engine.NewLoop(provider, reg, agenttools.Tools(snClient, azClient)),
		Notices:       &transport.BusSender{Bus: bus, Kind: eventbus.KindNotice},
		Replies:       &transport.BusSender{Bus: bus, Kind: eventbus.KindReply},
		Persist:       store,
		TurnTimeout:   cfg.TurnTimeout,
		MaxIterations: cfg.MaxIterations,
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	go sweepSessions(serverCtx, sessions, cfg.SessionMaxAge, cfg.SweepInterval)

	apiServer := &api.Server{
		Orchestrator: orch,
		Sessions:     sessions,
		Log:          history,
		Registry:     reg,
		Bus:          bus,
		DeleteUser: func(userID string) error {
			return store.DeleteUser(context.Background(), userID)
		},
		StartedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("deskbotd listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

func sweepSessions(ctx context.Context, sessions *session.Store, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(maxAge); n > 0 {
				log.Printf("swept %d idle sessions", n)
			}
		}
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
