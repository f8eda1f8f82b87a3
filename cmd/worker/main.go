package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/approval"
	"github.com/brokerdesk/campaign-engine/internal/audience"
	"github.com/brokerdesk/campaign-engine/internal/automation"
	"github.com/brokerdesk/campaign-engine/internal/config"
	"github.com/brokerdesk/campaign-engine/internal/dispatch"
	"github.com/brokerdesk/campaign-engine/internal/notify"
	"github.com/brokerdesk/campaign-engine/internal/orchestrator"
	"github.com/brokerdesk/campaign-engine/internal/repository/postgres"
	"github.com/brokerdesk/campaign-engine/internal/service/campaign"
	"github.com/brokerdesk/campaign-engine/internal/service/template"
	"github.com/brokerdesk/campaign-engine/internal/variant"
)

func main() {
	log.Println("[Worker] Starting campaign engine worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("[Worker] Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Worker] Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("[Worker] Failed to ping database: %v", err)
	}
	log.Println("[Worker] Connected to database")

	var redisClient *redis.Client
	var notifier campaign.Notifier = notify.Noop{}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("[Worker] Invalid Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		notifier = notify.NewRedisNotifier(redisClient)
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db)
	clientRegistry := postgres.NewClientRegistry(db)
	campaignSvc := campaign.NewService(campaignRepo, approval.NewGate(cfg.Approval.BudgetThreshold), notifier)
	templateSvc := template.NewService(postgres.NewTemplateRepo(db))

	registry := dispatch.NewRegistry()
	for _, t := range []dispatch.Transport{
		dispatch.NewSESTransport(cfg.SES),
		dispatch.NewSMSTransport(cfg.SMS),
		dispatch.NewInstantTransport(cfg.Instant),
		dispatch.NewSocialTransport(cfg.Social),
	} {
		if err := t.ValidateConfig(); err != nil {
			log.Printf("[Worker] Channel %s not configured: %v", t.Channel(), err)
			continue
		}
		registry.Register(t)
		log.Printf("[Worker] Channel %s registered", t.Channel())
	}

	limiter := dispatch.NewRateLimiter(redisClient, cfg.Dispatch.RatePerMinute)
	dispatcher := dispatch.NewDispatcher(registry, limiter, cfg.Dispatch.SendTimeout())
	resolver := audience.NewResolver(clientRegistry)
	engine := orchestrator.New(campaignSvc, resolver, variant.NewSelector(time.Now().UnixNano()),
		dispatcher, recipientRepo, cfg.Dispatch.WorkerCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Due-campaign poller.
	poller := orchestrator.NewPoller(campaignSvc, engine)
	go poller.Run(ctx, cfg.Dispatch.PollInterval())

	// Automation trigger scheduler.
	if cfg.Automation.Enabled {
		handlers := automation.NewHandlerRegistry()
		policyRegistry := postgres.NewPolicyRegistry(db)
		for _, h := range []automation.Handler{
			automation.NewBirthdayHandler(clientRegistry),
			automation.NewAnniversaryHandler(clientRegistry),
			automation.NewPolicyExpiryHandler(policyRegistry),
			automation.NewPaymentDueHandler(policyRegistry),
			automation.NewClaimUpdateHandler(postgres.NewClaimRegistry(db)),
		} {
			if err := handlers.Register(h); err != nil {
				log.Fatalf("[Worker] Failed to register trigger %s: %v", h.Trigger(), err)
			}
		}
		scheduler := automation.NewScheduler(handlers, templateSvc, campaignSvc,
			automation.NewDeduper(redisClient), engine)
		go scheduler.Run(ctx, cfg.Automation.TickInterval())
		log.Println("[Worker] Automation scheduler enabled")
	}

	log.Println("[Worker] Running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Worker] Shutting down...")
	cancel()
	// Let in-flight dispatches record their outcomes.
	time.Sleep(2 * time.Second)
	log.Println("[Worker] Stopped")
}
