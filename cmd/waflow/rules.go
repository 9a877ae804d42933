package main

import (
	"fmt"
	"os"

	"waflow/internal/bot"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage automation rules",
	}

	var owner string
	imp := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create every rule in a YAML file for one owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rules, err := bot.ParseRules(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			_, gdb, err := open()
			if err != nil {
				return err
			}
			store := &bot.Store{DB: gdb}
			if err := store.Import(cmd.Context(), owner, rules); err != nil {
				return err
			}
			log.Info().Str("owner", owner).Int("rules", len(rules)).Msg("rules imported")
			return nil
		},
	}
	imp.Flags().StringVar(&owner, "owner", "", "owner account number")
	_ = imp.MarkFlagRequired("owner")

	cmd.AddCommand(imp)
	return cmd
}
