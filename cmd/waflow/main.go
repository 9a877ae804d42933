package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "waflow",
		Short:         "Paced WhatsApp campaigns and auto-reply rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), rulesCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("waflow failed")
		os.Exit(1)
	}
}
