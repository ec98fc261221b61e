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

	"github.com/gin-gonic/gin"
	"github.com/sndcds/hive"
	"github.com/sndcds/hive/logger"
	"github.com/spf13/pflag"
)

func main() {
	configFileName := pflag.StringP("config", "c", "config.json", "path to the JSON or YAML config file")
	workers := pflag.IntP("workers", "w", 4, "parallel assets for reencode")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: hive [flags] [serve|migrate|reencode]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	config, err := hive.LoadConfig(*configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.LogLevel, config.LogFormat)
	if config.HiveVerbose {
		config.Print(log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if pflag.NArg() > 0 {
		command = pflag.Arg(0)
	}

	switch command {
	case "serve":
		err = serve(ctx, config, log)
	case "migrate":
		err = hive.Migrate(ctx, config, log)
	case "reencode":
		err = reencode(ctx, config, *workers, log)
	default:
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("hive failed", "command", command, "err", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, config hive.Config, log *slog.Logger) error {
	if err := hive.Migrate(ctx, config, log); err != nil {
		return err
	}
	if err := os.MkdirAll(config.HiveDataDir, os.ModePerm); err != nil {
		return err
	}

	h, err := hive.Open(ctx, config, log)
	if err != nil {
		return err
	}
	defer h.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    config.ListenAddr,
		Handler: h.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", config.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func reencode(ctx context.Context, config hive.Config, workers int, log *slog.Logger) error {
	enc, err := config.Encoder()
	if err != nil {
		return err
	}
	resample, err := hive.ResamplerByName(config.HiveResampler)
	if err != nil {
		return err
	}
	in := hive.NewIngestor(config.HiveDataDir, enc, resample, log)
	in.MaxPixels = config.HiveMaxPixels
	result, err := in.ReencodeAll(ctx, workers)
	log.Info("re-encode finished", "reencoded", result.Reencoded, "failed", result.Failed, "quality", enc.Quality)
	return err
}
