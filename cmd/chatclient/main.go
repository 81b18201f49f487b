// Package main is the CLI entry point for the chat client core: parse
// flags, load configuration, set up logging, and arrange for graceful
// shutdown on Ctrl+C/SIGTERM. Its only job is to build an App and hand
// it control.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kurtskinny/twitch-chat-core/internal/app"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/concurrency"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/config"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/pr"
)

// main brings up the environment, starts the app, and blocks until
// shutdown. Order:
//  1. bootstrap: stdout/stderr through pr, a bare log with a time prefix,
//  2. flags/env: path to .env,
//  3. config: load and print warnings,
//  4. logger: level, writers, and the rotating file sink,
//  5. signals: a context canceled on Ctrl+C/SIGTERM (stop must be called),
//  6. run-timeout: an optional RUN_TIMEOUT_SEC cutoff for scripted demo runs,
//  7. app: Init(ctx, stop) then Run().
func main() {
	log.SetFlags(0)
	log.SetPrefix(time.Now().Format("2006-01-02 15:04:05 "))
	if err := pr.Init(); err != nil {
		log.Fatalf("failed to assign stdout and stderr: %v", err)
	}

	envPath := flag.String("env", "assets/.env", "path to .env file")
	flag.Parse()

	if err := config.Load(*envPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(config.Env().LogLevel)
	logger.SetWriters(pr.Stdout(), pr.Stderr())
	logger.EnableFileSink(config.Env().LogFile, 50, 5, 28)
	for _, msg := range config.Warnings() {
		logger.Warn(msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := concurrency.StartTimeoutTimer(ctx, config.Env().RunTimeoutSec, stop); err != nil {
		log.Fatalf("failed to start run-timeout timer: %v", err)
	}

	a := app.NewApp()
	if err := a.Init(ctx, stop); err != nil {
		stop()
		log.Fatalf("app init failed: %v", err)
	}

	if err := a.Run(); err != nil {
		stop()
		log.Fatalf("app run failed: %v", err)
	}

	stop()
	log.Println("Graceful shutdown complete")
}
