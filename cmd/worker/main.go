package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"patroltrack/internal/checkpoint"
	"patroltrack/internal/config"
	"patroltrack/internal/metrics"
	"patroltrack/internal/notify"
	"patroltrack/internal/queue"
	"patroltrack/internal/store"
)

// Worker owns all recurrence writes: a cron pass rolls lapsed recurring
// template windows forward, and a queue consumer materializes occurrence
// records for newly created recurring templates. Read paths in the API never
// touch recurrence state.
func main() {
	godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "patrol:expand")
	}

	repo := checkpoint.NewRepository(db.Client)
	expander := checkpoint.NewExpander(repo)
	notifier := notify.New(redisClient.Client)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(cfg.RollSchedule, func() {
		passCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		rolled, err := expander.RollPass(passCtx, time.Now().UTC())
		if err != nil {
			log.Printf("roll pass failed: %v", err)
			return
		}
		if rolled > 0 {
			metrics.RecurrenceRolls.Add(float64(rolled))
			log.Printf("roll pass advanced %d template(s)", rolled)
		}
	})
	if err != nil {
		log.Fatalf("cron schedule invalid: %v", err)
	}
	c.Start()
	defer c.Stop()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for expand jobs...")
	for msg := range messages {
		if msg.Type != queue.TypeExpand {
			continue
		}
		metrics.ExpandJobs.Inc()

		id := string(msg.Body)
		cp, err := repo.Get(ctx, id)
		if err != nil {
			log.Printf("fetch checkpoint %s failed: %v", id, err)
			continue
		}
		if cp == nil {
			log.Printf("checkpoint %s gone before expansion", id)
			continue
		}

		created, err := expander.Materialize(ctx, *cp, time.Now().UTC())
		if err != nil {
			log.Printf("materialize %s failed: %v", id, err)
			continue
		}
		if created > 0 {
			metrics.OccurrencesMaterialized.Add(float64(created))
			notifier.Publish(ctx, notify.Event{
				Collection: "checkpoints", ID: cp.ID, CompanyID: cp.CompanyID, Kind: "updated",
			})
		}
		log.Printf("checkpoint %s: materialized %d occurrence(s)", id, created)
	}

	log.Println("worker stopped")
}
