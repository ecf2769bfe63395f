package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jim-purch/jim-resume/internal/adapter/github"
	"github.com/Jim-purch/jim-resume/internal/adapter/notify"
	"github.com/Jim-purch/jim-resume/internal/adapter/repository"
	"github.com/Jim-purch/jim-resume/internal/adapter/scoring"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/port"
	"github.com/Jim-purch/jim-resume/internal/scheduler"
	"github.com/Jim-purch/jim-resume/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	once := flag.Bool("once", false, "run a single analysis and exit")
	noNotify := flag.Bool("no-notify", false, "compute and persist the report but skip notification dispatch")
	flag.Parse()

	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ configuration: %v", err)
	}

	store, err := repository.NewPostgresStore(cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("❌ store: %v", err)
	}

	fetcher := github.NewFetcher(cfg.GitHub.Token, cfg.GitHub.IncludePrivate)
	engine := scoring.NewEngine(cfg.Scoring)
	dispatcher := service.NewDispatcher(store, buildChannels(cfg), cfg)
	monitor := service.NewMonitorService(fetcher, store, engine, dispatcher, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		runOnce(ctx, monitor, !*noNotify)
		return
	}

	sched, err := scheduler.New(monitor, store, scheduler.RealClock{}, cfg, !*noNotify)
	if err != nil {
		log.Fatalf("❌ scheduler: %v", err)
	}
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("❌ scheduler stopped: %v", err)
	}
	log.Println("👋 shutdown complete")
}

// runOnce executes a single synchronous run and exits with a status the
// external trigger (cron, CI) can observe.
func runOnce(ctx context.Context, monitor *service.MonitorService, notifyEnabled bool) {
	rep, err := monitor.RunOnce(ctx, port.RunOptions{Notify: notifyEnabled})
	if err != nil {
		log.Printf("❌ run failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("report %s: %d projects, avg complexity %.2f, outcome %s\n",
		rep.RunID, rep.Stats.TotalProjects, rep.Stats.AvgComplexity, rep.Outcome)
}

func buildChannels(cfg config.Config) []port.Channel {
	var channels []port.Channel
	if cfg.Notifications.Email.Enabled {
		channels = append(channels, notify.NewEmailChannel(cfg.Notifications.Email))
	}
	if cfg.Notifications.Webhook.Enabled {
		channels = append(channels, notify.NewWebhookChannel(cfg.Notifications.Webhook.URL))
	}
	if len(channels) == 0 {
		log.Println("⚠️ no notification channels enabled; reports will only be persisted")
	}
	return channels
}
