package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/veridian-systems/veridian/internal/activity"
	"github.com/veridian-systems/veridian/internal/config"
	"github.com/veridian-systems/veridian/internal/explain"
	"github.com/veridian-systems/veridian/internal/logging"
	"github.com/veridian-systems/veridian/internal/messaging"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/pipeline"
	"github.com/veridian-systems/veridian/internal/repository"
	"github.com/veridian-systems/veridian/internal/rules"
	"github.com/veridian-systems/veridian/internal/scoring"
	"github.com/veridian-systems/veridian/internal/synthesis"
)

const eventsSubject = "veridian.events"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	logger = logger.With(logging.Service("veridian"))

	repo, err := buildRepository(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	tracker := activity.NewTracker(redisClient, cfg.Reasoning.ActivityWindow, cfg.Redis.Enabled)

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.NATS.Enabled {
		p, err := messaging.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, "veridian-alerts")
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	scorer := scoring.NewHeuristicScorer(repo)
	evaluator := rules.NewEvaluator(repo)
	synthesizer, err := synthesis.NewSynthesizer(repo, cfg.Reasoning)
	if err != nil {
		log.Fatalf("Invalid reasoning policy: %v", err)
	}
	builder := explain.NewBuilder(repo)

	svc := pipeline.NewService(repo, scorer, evaluator, synthesizer, builder, tracker, publisher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port)
	}

	if cfg.NATS.Enabled {
		consumer, err := messaging.NewConsumer(cfg.NATS.URL, "veridian-events")
		if err != nil {
			log.Fatalf("Failed to create event consumer: %v", err)
		}
		defer consumer.Close()

		work := make(chan *models.ProcessedEvent, cfg.Reasoning.Workers*4)
		for i := 0; i < cfg.Reasoning.Workers; i++ {
			go worker(ctx, svc, work, logger)
		}

		if err := consumer.Subscribe(eventsSubject, func(event *models.ProcessedEvent) {
			select {
			case work <- event:
			case <-ctx.Done():
			}
		}); err != nil {
			log.Fatalf("Failed to subscribe: %v", err)
		}
		logger.InfoContext(ctx, "event consumer started", "subject", eventsSubject, "workers", cfg.Reasoning.Workers)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.InfoContext(ctx, "shutting down")
}

func worker(ctx context.Context, svc *pipeline.Service, work <-chan *models.ProcessedEvent, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-work:
			if _, err := svc.Process(ctx, event, nil); err != nil {
				logger.ErrorContext(ctx, "pipeline run failed",
					logging.EventID(event.ID), logging.Error(err))
			}
		}
	}
}

func buildRepository(cfg *config.Config) (repository.Repository, error) {
	if cfg.Database.Type == "memory" {
		return repository.NewInMemoryRepository(), nil
	}

	connString := cfg.Database.Postgres.ConnString()

	log.Println("Running database migrations...")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")

	return repository.NewPostgresRepository(context.Background(), connString)
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}
