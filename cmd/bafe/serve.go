package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazodiac/bafe/pkg/api"
	"github.com/bazodiac/bafe/pkg/compliance"
	"github.com/bazodiac/bafe/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	_ = a.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	obs, err := observability.New(observability.WithVersion(version))
	if err != nil {
		return exitf(exitUsage, "observability: %v", err)
	}
	rulesets := a.rulesets()
	validator := compliance.New(
		compliance.WithLogger(a.logger),
		compliance.WithRulesets(rulesets),
		compliance.WithInstrumentation(obs),
	)
	server := api.NewServer(api.Options{
		Validator:      validator,
		Rulesets:       rulesets,
		Logger:         a.logger,
		MaxBodyBytes:   a.cfg.MaxBodyBytes,
		RateLimitRPS:   a.cfg.RateLimitRPS,
		RateLimitBurst: a.cfg.RateLimitBurst,
	})

	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return exitf(exitUsage, "listen %s: %v", a.cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if rl := server.RateLimiter(); rl != nil {
		go rl.Run(ctx)
	}

	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}()

	a.logger.Info("serving validation API", "addr", ln.Addr().String(), "version", version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
