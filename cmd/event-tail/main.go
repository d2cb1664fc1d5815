package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
	"github.com/jmr-leaderboard/internal/kafka"
	"github.com/jmr-leaderboard/internal/postgres"
)

// printer writes one line per score event and keeps outcome totals
type printer struct {
	out     io.Writer
	archive *postgres.Repository

	mu     sync.Mutex
	totals map[domain.SubmissionOutcome]int
}

func (p *printer) RecordEvent(ctx context.Context, e domain.ScoreEvent) error {
	p.mu.Lock()
	p.totals[e.Outcome]++
	fmt.Fprintf(p.out, "[%s] mode=%s player=%-16s score=%-10d %-8s %s\n",
		e.Timestamp.Format("15:04:05"),
		e.Mode,
		e.PlayerID,
		e.Score,
		e.Outcome,
		e.RecordID,
	)
	p.mu.Unlock()

	if p.archive != nil {
		return p.archive.RecordEvent(ctx, e)
	}
	return nil
}

func (p *printer) summary() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n✓ inserted: %d | improved: %d | rejected: %d | disabled: %d\n",
		p.totals[domain.OutcomeInserted],
		p.totals[domain.OutcomeImproved],
		p.totals[domain.OutcomeRejected],
		p.totals[domain.OutcomeDisabled],
	)
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides config")
	topic := flag.String("topic", "", "Kafka topic, overrides config")
	group := flag.String("group", "", "Consumer group id, overrides config")
	fromStart := flag.Bool("from-start", false, "Read the topic from the oldest offset")
	archive := flag.Bool("archive", false, "Also store events in the PostgreSQL score_events table")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}
	if *group != "" {
		cfg.Kafka.GroupID = *group
	}

	p := &printer{
		out:    os.Stdout,
		totals: make(map[domain.SubmissionOutcome]int),
	}

	if *archive {
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		if err := repo.RunMigrations(context.Background()); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		p.archive = repo
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Score event tail")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:  %s\n", strings.Join(cfg.Kafka.Brokers, ","))
	fmt.Printf("  Topic:    %s\n", cfg.Kafka.Topic)
	fmt.Printf("  Group:    %s\n", cfg.Kafka.GroupID)
	fmt.Printf("  Archive:  %t\n", *archive)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	consumer, err := kafka.NewConsumer(&cfg.Kafka, p, *fromStart, logger)
	if err != nil {
		logger.Error("failed to create kafka consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("failed to start kafka consumer", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	if err := consumer.Stop(); err != nil {
		logger.Error("failed to stop kafka consumer", "error", err)
	}
	p.summary()
}
