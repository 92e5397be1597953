package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pricewatch/config"
	"pricewatch/internal/monitor"
	"pricewatch/internal/server"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Inicia o monitoramento periódico e o servidor de operação",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := monitor.NewScheduler(a.monitor, cfg.Monitor.ScanOnStart, a.metrics, logger)
			if err := sched.Start(cfg.Monitor.Interval); err != nil {
				return err
			}

			var srv *server.Server
			errCh := make(chan error, 1)
			if cfg.Server.Addr != "" {
				gin.SetMode(gin.ReleaseMode)
				srv = server.New(cfg.Server.Addr, a.db, sched, a.metrics.Registry(), logger)
				go func() { errCh <- srv.Run() }()
			}

			// Aguardar sinal de interrupção
			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("servidor de operação parou", slog.Any("error", err))
				}
			}

			logger.Info("Encerrando...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Monitor))
			defer cancel()

			var errs []error
			if err := sched.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
			if srv != nil {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// shutdownTimeout cobre um item em andamento: a busca e o envio do alerta
// usam cada um até ItemTimeout, mais a gravação no banco.
func shutdownTimeout(cfg config.MonitorConfig) time.Duration {
	return 2*cfg.ItemTimeout + 10*time.Second
}
