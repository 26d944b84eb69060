package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"menreiki/app/client/discord"
	"menreiki/app/client/llm"
	"menreiki/app/config"
	"menreiki/app/service/chat"
	"menreiki/app/service/history"
	"menreiki/app/service/relay"
	"menreiki/app/service/status"
	"menreiki/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, history.New)
	do.Provide(di, llm.New)
	do.Provide(di, chat.New)
	do.Provide(di, relay.New)
	do.Provide(di, discord.NewClient)
	do.Provide(di, status.New)

	g, ctx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		return do.MustInvoke[*discord.Client](di).Run(ctx)
	})
	g.Go(func() error {
		return do.MustInvoke[*status.Server](di).Run(ctx)
	})

	slog.Info("Service started", "model", cfg.OpenAI.Model, "driver", cfg.OpenAI.Driver)

	if err = g.Wait(); err != nil {
		slog.Error("Service failed", "error", err)
	}

	log.Info("Shutting down...")
}
