package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/roll"
	"rollcall/internal/store"
)

// Worker consumes queued check-ins and writes them into the current month's
// attendance collection.
func main() {
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

	docs, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store connect failed: %v", err)
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for check-ins...")
	for msg := range messages {
		if msg.Type != "checkin" {
			continue
		}

		var checkin roll.CheckIn
		if err := json.Unmarshal(msg.Body, &checkin); err != nil {
			log.Printf("drop malformed check-in: %v", err)
			continue
		}
		checkin.Normalize(time.Now())

		collection := roll.CollectionFor(time.Now())
		id := uuid.NewString()
		if err := docs.Set(ctx, collection, id, checkin.Document()); err != nil {
			log.Printf("write check-in %s failed: %v", id, err)
			continue
		}
		log.Printf("stored check-in %s for roll %s in %s", id, checkin.RollNumber, collection)
	}

	log.Println("worker stopped")
}

func openStore(cfg config.App) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		mg, err := store.NewMongo(context.Background(), cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return mg, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mg.Close(ctx)
		}, nil
	}
}
