package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"chain_stats/internal/api"
	"chain_stats/internal/config"
	"chain_stats/internal/domain"
	"chain_stats/internal/logging"
	"chain_stats/internal/store"
	"chain_stats/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	httpShutdownTimeout     = 10 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

type statsStore interface {
	Scope(ctx context.Context, fn func(context.Context, store.Queries) error) error
	Ping(ctx context.Context) error
	Addresses() *mongo.Collection
	Transactions() *mongo.Collection
	Close(ctx context.Context) error
}

type botRunner interface {
	Start(ctx context.Context)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var (
	connectStore = func(ctx context.Context, cfg config.Config) (statsStore, error) {
		return store.NewManager(ctx, cfg)
	}

	newBot = func(cfg config.Config, logger *logrus.Entry, st statsStore) (botRunner, error) {
		return telegram.NewClient(cfg, logger, telegram.WithQueryScope(st))
	}

	newHTTPServer = func(cfg config.Config, logger *logrus.Entry, st statsStore) httpServer {
		return api.NewServer(cfg.HTTPPort, logger,
			api.WithQueryScope(st),
			api.WithMongoChecker(st),
			api.WithAddressFinder(domain.NewAddressRepository(st.Addresses())),
			api.WithTransactionFinder(domain.NewTransactionRepository(st.Transactions())),
		)
	}
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(signalCtx, cfg, logger)
	stop()
	if err != nil {
		logger.WithField("event", "startup_failed").WithError(err).Error("service failed")
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run connects Mongo, starts the optional bot and the HTTP API, and blocks
// until ctx ends or the HTTP server fails. Everything it started is stopped
// before it returns, including on setup errors.
func run(ctx context.Context, cfg config.Config, logger *logrus.Entry) error {
	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	st, err := connectStore(connectCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("mongo connection: %w", err)
	}
	defer closeStore(logger, st)

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	var bot botRunner
	if cfg.TelegramEnabled() {
		bot, err = newBot(cfg, logger, st)
		if err != nil {
			return fmt.Errorf("telegram client setup: %w", err)
		}
		logger.WithField("event", "telegram_ready").Info("telegram client initialized")
	} else {
		logger.WithField("event", "telegram_disabled").Info("telegram token not set, stats bot disabled")
	}

	server := newHTTPServer(cfg, logger, st)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- server.ListenAndServe()
	}()

	botCtx, cancelBot := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	if bot != nil {
		go func() {
			bot.Start(botCtx)
			close(botDone)
		}()
	} else {
		close(botDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case err := <-httpErr:
		if err != nil {
			logger.WithField("event", "http_failed").WithError(err).Error("http server stopped unexpectedly")
			runErr = err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("http server shutdown error", logging.Fields{"event": "http_shutdown_error", "error": err})
	}
	cancelShutdown()

	cancelBot()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-botDone:
	case <-waitCtx.Done():
		logging.Warn("timed out waiting for telegram client to stop", logging.Fields{"event": "telegram_shutdown_timeout"})
	}
	cancelWait()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
	return runErr
}

func closeStore(logger *logrus.Entry, st statsStore) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()

	if err := st.Close(ctx); err != nil {
		logger.WithField("event", "mongo_disconnect").WithError(err).Error("mongo disconnect error")
		return
	}
	logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
}
