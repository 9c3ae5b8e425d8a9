package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moment-mint/internal/config"
	"moment-mint/internal/factory"
	"moment-mint/internal/session"
	"moment-mint/internal/util"
	"moment-mint/internal/verification"
)

func main() {
	cfg := config.LoadConfig()
	level := cfg.Logging.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger := util.InitWithOutput(cfg.Environment, level, cfg.Logging.Format, "stderr")
	defer util.Sync()

	f, err := factory.NewClientFactory(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "moment-mint:", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := newTerminal(os.Stdout)
	newCtrl := func() (*verification.Controller, error) {
		return f.NewController(term, term, term.cooldownTick)
	}
	ctrl, err := newCtrl()
	if err != nil {
		logger.Fatal("Failed to build verification flow", zap.Error(err))
	}

	// route and country list load concurrently
	var route session.Route
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		route = f.Gate().InitialRoute(gctx)
		return nil
	})
	g.Go(func() error {
		return ctrl.Start(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.Warn("Start-up incomplete", zap.Error(err))
	}

	a := &app{term: term, gate: f.Gate(), api: f.API(), ctrl: ctrl, newCtrl: newCtrl}
	if route == session.RouteMainTabs {
		term.authed.Store(true)
	}
	term.printf("Moment Mint. Type 'help' for commands.\n")
	a.render()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.ctrl.Close()
			term.printf("\nBye.\n")
			return
		case line, ok := <-lines:
			if !ok || a.handle(ctx, line) {
				a.ctrl.Close()
				return
			}
		}
	}
}
