package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/config"
	"github.com/Elzor/vstorage/internal/engine"
	"github.com/Elzor/vstorage/internal/httpapi"
	"github.com/Elzor/vstorage/internal/metrics"
	"github.com/Elzor/vstorage/internal/rpcapi"
	"github.com/Elzor/vstorage/internal/vstorageproto"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC front-ends against the configured data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	defaultCompression, err := codec.ParseCompression(cfg.DefaultCompression)
	if err != nil {
		return errors.Wrap(err, "vstorage serve")
	}

	reg := metrics.New()
	eng, err := engine.Open(engine.Config{
		DataDir:                   cfg.DataDir,
		SlabCapacity:              cfg.SlabCapacity,
		CompactLiveRatioThreshold: cfg.CompactLiveRatioThreshold,
		CompactMinAge:             cfg.CompactMinAge(),
		VerifyOnRead:              cfg.VerifyOnRead,
		DefaultCompression:        defaultCompression,
		Metrics:                   reg,
	})
	if err != nil {
		return errors.Wrap(err, "vstorage serve: open engine")
	}

	httpSrv := &http.Server{Addr: cfg.HTTPListen, Handler: httpapi.New(eng, reg)}

	grpcSrv := grpc.NewServer()
	vstorageproto.RegisterBlockApiServer(grpcSrv, rpcapi.New(eng))

	rpcLis, err := net.Listen("tcp", cfg.RPCListen)
	if err != nil {
		return errors.Wrap(err, "vstorage serve: rpc listen")
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPListen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "http serve")
		}
	}()
	go func() {
		logger.Info("rpc listening", "addr", cfg.RPCListen)
		if err := grpcSrv.Serve(rpcLis); err != nil {
			errCh <- errors.Wrap(err, "rpc serve")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("front-end failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	if err := eng.Close(); err != nil {
		return errors.Wrap(err, "vstorage serve: engine close")
	}
	fmt.Fprintln(os.Stderr, "stopped")
	return nil
}
