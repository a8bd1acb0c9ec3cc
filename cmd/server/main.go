package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"matchwire/api"
	"matchwire/dispatch"
	"matchwire/domain"
	"matchwire/entitlement"
	"matchwire/events"
	"matchwire/internal"
	"matchwire/live"
	"matchwire/moderation"
	"matchwire/repositories"
	"matchwire/resolver"
	"matchwire/services"
	"matchwire/workers"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the function exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		log.Info("Debug badger inspector available", "url", url)
		internal.StartDebugServer(db, config.DebugPort, nil, nil)
	}

	// 3. Moderation pipeline
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("loading censored words failed: %w", err)
	}
	log.Info("Censored dictionaries loaded", "languages", censored.Languages, "words", len(censored.Words))
	moderator, err := moderation.NewModerator(censored.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("building moderator failed: %w", err)
	}
	pipeline := moderation.NewPipeline(moderator, log)

	// 4. Repositories
	threadRepository := repositories.NewThreadRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)
	accountRepository := repositories.NewAccountRepository(db)
	interestRepository := repositories.NewInterestRepository(db)
	usageRepository := repositories.NewUsageRepository(db)
	notificationRepository := repositories.NewNotificationRepository(db, log)
	preferenceRepository := repositories.NewPreferenceRepository(db)

	// 5. Domain services
	participantResolver := resolver.NewParticipantResolver(accountRepository, log)
	planLookup := func(context.Context, domain.AccountID) (string, error) { return "gold", nil }
	entitlements := entitlement.NewService(entitlement.DefaultPlans(), planLookup, usageRepository)
	registry := live.NewRegistry(log)
	bus := events.NewBus(log)

	chatService := services.NewChatService(
		threadRepository,
		messageRepository,
		participantResolver,
		entitlements,
		interestRepository,
		pipeline,
		registry,
		bus,
		log,
	)

	// 6. Notification dispatch
	queue := dispatch.NewQueue()
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Tick:         config.DispatchTick,
		SendTimeout:  config.SendTimeout,
		FlushTimeout: config.FlushTimeout,
	}, queue,
		preferenceRepository,
		dispatch.NewTemplateStore(),
		notificationRepository,
		dispatch.NewLogEmailSender(log),
		dispatch.NewLivePushSender(registry),
		log,
	)
	bus.Subscribe(dispatcher.HandleEvent)

	// 7. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Supervision
	sup := workers.NewSupervisor(log).WithRestartInterval(config.RestartInterval)
	supDone := make(chan struct{})
	go func() {
		sup.Add(dispatcher).Run(ctx)
		close(supDone)
	}()

	// 9. HTTP server
	apiServer := api.NewServer(chatService, notificationRepository, registry, config.SinkBufferSize, log)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues asynchronously.
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 11. Final Cleanup (Graceful Shutdown)
	// In-flight requests get ShutdownTimeout to finish, then workers drain.
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, log *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if log.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
