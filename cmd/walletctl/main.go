package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "walletctl",
	Short: "Operator tooling for the walletlink ledger",
	Long: `walletctl works directly against the ledger database named by
DATABASE_DRIVER and DATABASE_URL.

Available commands:
  migrate          - Create or upgrade the schema
  principal <id>   - Show a principal with its referral stats
  referrals export - Write every referral edge to an xlsx file`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(principalCmd)
	rootCmd.AddCommand(referralsCmd)
	referralsCmd.AddCommand(referralsExportCmd)

	referralsExportCmd.Flags().StringP("out", "o", "referrals.xlsx", "output file")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
