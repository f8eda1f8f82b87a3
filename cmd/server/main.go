package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/api"
	"github.com/brokerdesk/campaign-engine/internal/approval"
	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/config"
	"github.com/brokerdesk/campaign-engine/internal/dispatch"
	"github.com/brokerdesk/campaign-engine/internal/notify"
	"github.com/brokerdesk/campaign-engine/internal/orchestrator"
	"github.com/brokerdesk/campaign-engine/internal/repository/postgres"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
	"github.com/brokerdesk/campaign-engine/internal/stats"
	"github.com/brokerdesk/campaign-engine/internal/variant"
)

func main() {
	log.Println("[Server] Starting campaign engine API...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Server] Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("[Server] Failed to ping database: %v", err)
	}
	log.Println("[Server] Connected to database")

	var redisClient *redis.Client
	var notifier campaign.Notifier = notify.Noop{}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("[Server] Invalid Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		notifier = notify.NewRedisNotifier(redisClient)
		log.Println("[Server] Redis notification bus enabled")
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)
	gate := approval.NewGate(cfg.Approval.BudgetThreshold)

	campaignSvc := campaign.NewService(campaignRepo, gate, notifier)
	templateSvc := template.NewService(postgres.NewTemplateRepo(db))
	aggregator := stats.NewAggregator(recipientRepo)

	// The API can launch a campaign directly; the worker's poller picks
	// up everything else.
	transports := buildTransports(cfg)
	limiter := dispatch.NewRateLimiter(redisClient, cfg.Dispatch.RatePerMinute)
	dispatcher := dispatch.NewDispatcher(transports, limiter, cfg.Dispatch.SendTimeout())
	resolver := audience.NewResolver(postgres.NewClientRegistry(db))
	processor := orchestrator.New(campaignSvc, resolver, variant.NewSelector(time.Now().UnixNano()),
		dispatcher, recipientRepo, cfg.Dispatch.WorkerCount)

	server := api.NewServer(api.NewHandlers(campaignSvc, templateSvc, aggregator, processor))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("[Server] HTTP server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}

// buildTransports registers every channel transport that is configured.
func buildTransports(cfg *config.Config) *dispatch.Registry {
	registry := dispatch.NewRegistry()
	for _, t := range []dispatch.Transport{
		dispatch.NewSESTransport(cfg.SES),
		dispatch.NewSMSTransport(cfg.SMS),
		dispatch.NewInstantTransport(cfg.Instant),
		dispatch.NewSocialTransport(cfg.Social),
	} {
		if err := t.ValidateConfig(); err != nil {
			log.Printf("[Server] Channel %s not configured: %v", t.Channel(), err)
			continue
		}
		registry.Register(t)
		log.Printf("[Server] Channel %s registered", t.Channel())
	}
	return registry
}
