// Command dlqreplay republishes stored dead letters to the queue they
// originally failed on, then removes them from the store. It is the manual
// recovery path after the bug that poisoned a consumer has been fixed.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/broker/redisq"
	"github.com/taskflow/notify/internal/store/postgres"

	_ "github.com/lib/pq"
)

const dbOpTimeout = 5 * time.Second

func main() {
	var (
		idFlag    = flag.String("id", "", "replay a single dead letter by id")
		allFlag   = flag.Bool("all", false, "replay every stored dead letter")
		limitFlag = flag.Int("limit", 100, "max dead letters to replay with -all")
		listFlag  = flag.Bool("list", false, "list stored dead letters and exit")
	)
	flag.Parse()

	if *idFlag == "" && !*allFlag && !*listFlag {
		fmt.Fprintln(os.Stderr, "usage: dlqreplay -id <uuid> | -all [-limit n] | -list")
		flag.PrintDefaults()
		os.Exit(2)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("dlqreplay: open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("dlqreplay: connect to database: %v", err)
	}

	store := postgres.New(db, dbOpTimeout)
	ctx := context.Background()

	if *listFlag {
		if err := listDeadLetters(ctx, store, *limitFlag); err != nil {
			log.Fatalf("dlqreplay: %v", err)
		}
		return
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		fmt.Fprintln(os.Stderr, "REDIS_ADDR is required for replay")
		os.Exit(2)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	// Replay only publishes; the broker never consumes here, so no
	// retrier is wired.
	bus := redisq.New(redisClient, nil)

	var letters []broker.DeadLetter
	if *idFlag != "" {
		id, err := uuid.Parse(*idFlag)
		if err != nil {
			log.Fatalf("dlqreplay: invalid id %q: %v", *idFlag, err)
		}
		dl, err := store.GetDeadLetter(ctx, id)
		if err != nil {
			log.Fatalf("dlqreplay: load dead letter %s: %v", id, err)
		}
		letters = []broker.DeadLetter{dl}
	} else {
		letters, err = store.ListDeadLetters(ctx, *limitFlag, 0)
		if err != nil {
			log.Fatalf("dlqreplay: list dead letters: %v", err)
		}
	}

	if len(letters) == 0 {
		fmt.Println("no dead letters to replay")
		return
	}

	replayed := 0
	for _, dl := range letters {
		if err := replay(ctx, bus, store, dl); err != nil {
			log.Printf("dlqreplay: replay %s failed: %v", dl.ID, err)
			continue
		}
		replayed++
		log.Printf("dlqreplay: replayed %s to queue %s (event %s)", dl.ID, dl.Queue, dl.Envelope.ID)
	}

	fmt.Printf("replayed %d of %d dead letters\n", replayed, len(letters))
	if replayed < len(letters) {
		os.Exit(1)
	}
}

// replay republishes the stored envelope verbatim, then deletes the dead
// letter. A publish failure leaves the row in place for another attempt.
func replay(ctx context.Context, bus *redisq.Broker, store *postgres.Store, dl broker.DeadLetter) error {
	envelope, err := json.Marshal(dl.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := bus.PublishTo(ctx, dl.Queue, envelope); err != nil {
		return err
	}
	if err := store.DeleteDeadLetter(ctx, dl.ID); err != nil {
		return fmt.Errorf("delete after replay: %w", err)
	}
	return nil
}

func listDeadLetters(ctx context.Context, store *postgres.Store, limit int) error {
	total, err := store.CountDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}

	letters, err := store.ListDeadLetters(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	fmt.Printf("%d dead letters stored (showing up to %d)\n", total, limit)
	for _, dl := range letters {
		fmt.Printf("%s  queue=%s  attempts=%d  failed_at=%s  error=%s\n",
			dl.ID, dl.Queue, dl.Attempts, dl.FailedAt.Format(time.RFC3339), dl.LastError)
	}
	return nil
}
