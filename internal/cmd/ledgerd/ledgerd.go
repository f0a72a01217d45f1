// Package ledgerd parses ledgerd command flags and runs the bank-account
// event-sourcing service: a SQLite-backed journal/outbox/snapshot store,
// the command-handling core wired to the bank domain model, an outbox
// delivery worker, and an HTTP + gRPC health surface.
package ledgerd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	entrypoint "github.com/ledgerflow/eventcore/internal/platform/cmd"

	httpapi "github.com/ledgerflow/eventcore/internal/api/http"
	"github.com/ledgerflow/eventcore/internal/eventcore/commandstore"
	"github.com/ledgerflow/eventcore/internal/eventcore/handler"
	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/notifications"
	"github.com/ledgerflow/eventcore/internal/eventcore/outbox"
	"github.com/ledgerflow/eventcore/internal/eventcore/repository"
	"github.com/ledgerflow/eventcore/internal/eventcore/snapshot"
	"github.com/ledgerflow/eventcore/internal/ledger/bank"
	"github.com/ledgerflow/eventcore/internal/storage/sqlite"
)

// Config holds ledgerd command configuration.
type Config struct {
	DBPath            string        `env:"EVENTCORE_LEDGERD_DB_PATH" envDefault:"data/ledger.db"`
	HTTPPort          int           `env:"EVENTCORE_LEDGERD_HTTP_PORT" envDefault:"8090"`
	GRPCPort          int           `env:"EVENTCORE_LEDGERD_GRPC_PORT" envDefault:"8091"`
	SnapshotCacheSize int           `env:"EVENTCORE_LEDGERD_SNAPSHOT_CACHE_SIZE" envDefault:"1000"`
	CommandCacheSize  int           `env:"EVENTCORE_LEDGERD_COMMAND_CACHE_SIZE" envDefault:"100"`
	MaxRetry          uint          `env:"EVENTCORE_LEDGERD_MAX_RETRY" envDefault:"5"`
	RetryInitialDelay time.Duration `env:"EVENTCORE_LEDGERD_RETRY_INITIAL_DELAY" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the ledgerd SQLite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The ledgerd HTTP API port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The ledgerd gRPC health server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the ledgerd service and blocks until ctx is cancelled or a
// component fails.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedgerd, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	logger := slog.Default()

	store, err := sqlite.Open[bank.Event, bank.Notification, bank.State](cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close storage", "error", err)
		}
	}()

	consumer := notifications.NewConsumer()
	repo := repository.New[bank.State, bank.Event, bank.Reason](store, snapshot.NewInMemory[bank.State](cfg.SnapshotCacheSize), bank.Model{})

	handlerCfg := handler.NewDefaultConfig()
	handlerCfg.MaxRetry = cfg.MaxRetry
	handlerCfg.RetryInitialDelay = cfg.RetryInitialDelay
	cmdHandler := handler.New[bank.State, bank.Event, bank.Command, bank.Reason, bank.Notification](
		repo, bank.Model{}, store, commandstore.New(cfg.CommandCacheSize), consumer, logger, handlerCfg)

	outboxReader := outbox.NewReader[bank.Notification](store, consumer, 100)
	outboxWorker := outbox.NewWorker[bank.Notification](outboxReader, logOnlyDelivery(logger), logger, 5, 200*time.Millisecond)

	httpServer := newHTTPServer(cfg.HTTPPort, httpapi.Options[bank.State, bank.Event, bank.Command, bank.Reason, bank.Notification]{
		Handler:      cmdHandler,
		Repository:   repo,
		OutboxReader: outboxReader,
		Decode:       decodeBankCommand,
		Logger:       logger,
	})

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer, healthServer := newGRPCServer()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return outboxWorker.Run(groupCtx) })
	group.Go(func() error {
		logger.Info("ledgerd http server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("ledgerd grpc health server listening", "port", cfg.GRPCPort)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newHTTPServer(port int, opts httpapi.Options[bank.State, bank.Event, bank.Command, bank.Reason, bank.Notification]) *http.Server {
	mux := http.NewServeMux()
	httpapi.NewHandlerSet(opts).Register(mux)
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}

func newGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

func logOnlyDelivery(logger *slog.Logger) outbox.Handler[bank.Notification] {
	return func(_ context.Context, item outbox.Item[bank.Notification]) error {
		logger.Info("outbox notification delivered",
			"stream_id", string(item.StreamID), "seq_nr", int64(item.SeqNr), "kind", item.Notification.Kind)
		return nil
	}
}

type wireCommand struct {
	AccountID string `json:"account_id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
}

func decodeBankCommand(raw json.RawMessage) (journal.StreamID, bank.Command, error) {
	var wire wireCommand
	if err := json.Unmarshal(raw, &wire); err != nil {
		return "", bank.Command{}, err
	}
	switch wire.Type {
	case "deposit":
		return journal.StreamID(wire.AccountID), bank.Deposit(wire.AccountID, wire.Amount), nil
	case "withdraw":
		return journal.StreamID(wire.AccountID), bank.Withdraw(wire.AccountID, wire.Amount), nil
	default:
		return "", bank.Command{}, fmt.Errorf("unknown command type: %q", wire.Type)
	}
}
