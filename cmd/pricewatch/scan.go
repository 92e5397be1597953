package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pricewatch/internal/monitor"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Executa um único ciclo de varredura e mostra o resumo",
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

			summary, err := a.monitor.RunCycle(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, s monitor.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ciclo %s (%s)\n", s.CycleID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Itens: %d  processados: %d  alterados: %d  inalterados: %d  falhas: %d  pulados: %d\n",
		s.Total, s.Processed, s.Updated, s.Unchanged, s.Failed, s.Skipped)
	fmt.Fprintf(out, "Notificações: %d enviadas, %d com erro\n", s.NotificationsSent, s.NotificationsFailed)
	for _, o := range s.Outcomes {
		switch o.Kind {
		case monitor.ExtractionFailed:
			fmt.Fprintf(out, "  #%d %s (%s): %v\n", o.ItemID, o.Kind, o.FailureKind, o.Err)
		case monitor.UpdateFailed:
			fmt.Fprintf(out, "  #%d %s: %v\n", o.ItemID, o.Kind, o.Err)
		}
	}
}
