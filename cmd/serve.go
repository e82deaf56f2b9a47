package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/ratelimit"
	"github.com/sells-group/jobatlas/internal/scheduler"
	"github.com/sells-group/jobatlas/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the jobs API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limiter := ratelimit.New(
			time.Duration(cfg.Server.RateWindowMS)*time.Millisecond,
			cfg.Server.RateMax,
		)

		srv := server.New(env.Store, env.Importer, server.Options{
			Limiter:       limiter,
			ImportSecret:  cfg.Import.Secret,
			ImportPages:   importPages(cfg.Import.Pages),
			ImportPerPage: cfg.Import.PerPage,
			CORSOrigins:   cfg.Server.CORSOrigins,
		})

		if cfg.Import.Schedule != "" {
			sched := scheduler.New(env.Importer, cfg.Import.Schedule,
				importPages(cfg.Import.Pages), cfg.Import.PerPage)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			httpSrv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func importPages(n int) []int {
	if n <= 0 {
		n = 2
	}
	pages := make([]int, n)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
