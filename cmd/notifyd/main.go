package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/taskflow/notify/internal/api"
	"github.com/taskflow/notify/internal/broker"
	"github.com/taskflow/notify/internal/broker/channel"
	"github.com/taskflow/notify/internal/broker/redisq"
	"github.com/taskflow/notify/internal/config"
	"github.com/taskflow/notify/internal/consumer"
	"github.com/taskflow/notify/internal/deadletter"
	"github.com/taskflow/notify/internal/dispatch"
	"github.com/taskflow/notify/internal/hub"
	"github.com/taskflow/notify/internal/metrics"
	"github.com/taskflow/notify/internal/store/postgres"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`notifyd - task tracker notification service

Usage:
  notifyd <command>

Commands:
  serve      Start the consumers, dispatcher and connection hub
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  JWT_SECRET                HMAC secret for websocket handshake tokens (required)
  BROKER_MODE               Broker backend: "channel" or "redis" (default: "channel")
  REDIS_ADDR                Redis address (required when BROKER_MODE is "redis")
  DATABASE_URL              PostgreSQL connection string for read models and
                            dead-letter persistence (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  QUEUE_BUFFER              Per-queue buffer size, channel mode (default: "100")
  HUB_SEND_BUFFER           Per-connection send buffer size (default: "32")

  RETRY_MAX_ATTEMPTS        Delivery attempts before dead-lettering (default: "3")
  RETRY_INITIAL_DELAY       Delay after the first failed attempt (default: "2s")
  RETRY_STEP                Delay increase per subsequent attempt (default: "2s")
  RETRY_MAX_DELAY           Retry delay cap (default: "30s")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  DEAD_LETTER_RETENTION     How long stored dead letters are kept (default: "168h")
  DEAD_LETTER_SWEEP_SCHEDULE Cron schedule for retention sweeps (default: "0 * * * *")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL when configured. Without it the service still
	// runs: dead letters are log-only and read models are unavailable.
	var db *sql.DB
	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		store = postgres.New(db, cfg.DBOpTimeout)
		log.Printf("notifyd: database connected (max_open=%d, max_idle=%d)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	} else {
		log.Println("notifyd: DATABASE_URL not set; dead letters are log-only")
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("notifyd: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("notifyd: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("notifyd: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("notifyd: METRICS_ENABLED not set; metrics disabled")
	}

	// Dead-letter sink: always logs, persists when a database is configured.
	dlSink := deadletter.NewSink()
	if store != nil {
		dlSink = dlSink.WithStore(store)
	}

	retrier := broker.NewRetrier(broker.RetryPolicy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		Step:         cfg.RetryStep,
		MaxDelay:     cfg.RetryMaxDelay,
	}, dlSink)
	if metricsSink != nil {
		retrier = retrier.WithMetrics(metricsSink)
	}

	// Pick the broker backend.
	var bus broker.Broker
	var redisClient *redis.Client

	switch cfg.BrokerMode {
	case config.BrokerModeRedis:
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		var opts []redisq.Option
		if metricsSink != nil {
			opts = append(opts, redisq.WithMetrics(metricsSink))
		}
		bus = redisq.New(redisClient, retrier, opts...)
		log.Printf("notifyd: broker mode redis (addr=%s)", cfg.RedisAddr)

	case config.BrokerModeChannel:
		var opts []channel.Option
		if metricsSink != nil {
			opts = append(opts, channel.WithMetrics(metricsSink))
		}
		bus = channel.New(retrier, cfg.QueueBuffer, opts...)
		log.Printf("notifyd: broker mode channel (buffer=%d)", cfg.QueueBuffer)
	}

	// Connection hub and dispatch service.
	connHub := hub.New()
	if metricsSink != nil {
		connHub = connHub.WithMetrics(metricsSink)
	}

	dispatchSvc := dispatch.New(connHub)
	if metricsSink != nil {
		dispatchSvc = dispatchSvc.WithMetrics(metricsSink)
	}

	emailSender := dispatch.NewSimulatedEmailSender()

	// Bind the three consumers to their queues.
	consumer.Register(bus,
		consumer.NewCreated(dispatchSvc, emailSender),
		consumer.NewAssigned(dispatchSvc),
		consumer.NewStatusChanged(dispatchSvc, emailSender),
	)

	// Websocket endpoint with JWT handshake auth.
	verifier := hub.NewJWTVerifier(cfg.JWTSecret)
	wsHandler := hub.NewHandler(connHub, verifier).WithSendBuffer(cfg.HubSendBuffer)

	apiHandler := api.NewHandler().WithHub(connHub)
	if db != nil {
		apiHandler = apiHandler.WithDatabase(api.PingerFunc(db.PingContext))
	}
	if redisClient != nil {
		apiHandler = apiHandler.WithRedis(api.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("notifyd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("notifyd: http server error: %v", err)
		}
	}()

	// Retention janitor over stored dead letters.
	var janitor *deadletter.Janitor
	if store != nil {
		janitor = deadletter.NewJanitor(store, cfg.DeadLetterRetention, cfg.DeadLetterSweepSchedule)
		if err := janitor.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start dead-letter janitor: %v\n", err)
			return exitRuntimeError
		}
		log.Printf("notifyd: dead-letter janitor started (retention=%s, schedule=%q)",
			cfg.DeadLetterRetention, cfg.DeadLetterSweepSchedule)
	}

	brokerCtx, cancelBroker := context.WithCancel(context.Background())
	var brokerWg sync.WaitGroup

	brokerWg.Add(1)
	go func() {
		defer brokerWg.Done()
		bus.Run(brokerCtx)
	}()

	log.Printf("notifyd: started (broker=%s, http=%s)", cfg.BrokerMode, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("notifyd: received signal %v, shutting down", received)

	// Phase 1: Stop the broker. The channel backend drains buffered events,
	// the redis backend leaves unacked entries for the next start.
	log.Println("notifyd: stopping broker...")
	cancelBroker()
	brokerWg.Wait()
	log.Println("notifyd: broker stopped")

	// Phase 2: Stop the janitor.
	if janitor != nil {
		log.Println("notifyd: stopping dead-letter janitor...")
		janitor.Stop()
		log.Println("notifyd: dead-letter janitor stopped")
	}

	// Phase 3: Stop HTTP server with graceful shutdown. Hijacked websocket
	// connections are torn down when the process exits.
	log.Println("notifyd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("notifyd: http server shutdown error: %v", err)
	}
	log.Println("notifyd: http server stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("notifyd: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("notifyd: metrics server shutdown error: %v", err)
		}
		log.Println("notifyd: metrics server stopped")
	}

	log.Println("notifyd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("notifyd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
