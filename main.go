package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"scholaria/backend/internal/app"
	"scholaria/backend/internal/config"
	"scholaria/backend/internal/logger"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(jsonHandler)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.DB.Close()
	defer deps.Gemini.Close()

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.ProgressCache, deps.NSQProducer, deps.Gemini, slog.Default())
	if err != nil {
		return err
	}

	// Worker (Ingest Consumer)
	var consumer *nsq.Consumer
	if cfg.EnableIngestWorker {
		nsqCfg := nsq.NewConfig()
		consumer, err = nsq.NewConsumer(config.TopicIngestDocument, config.ChannelBackend, nsqCfg)
		if err != nil {
			return err
		}
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return application.IngestConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			return err
		}
		slog.Info("ingest consumer connected", "topic", config.TopicIngestDocument, "channel", config.ChannelBackend)
	}

	if cfg.EnableAPI {
		if err := application.Run(ctx); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	if consumer != nil {
		consumer.Stop()
		<-consumer.StopChan
	}
	return nil
}
