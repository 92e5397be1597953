package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/internal/scraper"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Extrai nome e preço de uma URL sem gravar nada",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			extractor, closeExtractor, err := buildExtractor(cfg, logger)
			if err != nil {
				return err
			}
			if closeExtractor != nil {
				defer closeExtractor()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Monitor.ItemTimeout)
			defer cancel()

			listing, err := extractor.Extract(ctx, args[0])
			if err != nil {
				return fmt.Errorf("erro ao buscar preço (%s): %w", scraper.KindOf(err), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Produto: %s\n", listing.Name)
			fmt.Fprintf(out, "Preço atual: R$ %s\n", listing.Price.StringFixed(2))
			if listing.ImageURL != "" {
				fmt.Fprintf(out, "Imagem: %s\n", listing.ImageURL)
			}
			return nil
		},
	}
}
