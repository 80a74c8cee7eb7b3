package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/walletlink/internal/config"
	"github.com/openclaw/walletlink/internal/database"
	"github.com/openclaw/walletlink/internal/export"
	"github.com/openclaw/walletlink/internal/repository"
	"github.com/openclaw/walletlink/internal/service"
	"github.com/openclaw/walletlink/internal/util"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the ledger schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var principalCmd = &cobra.Command{
	Use:   "principal <id>",
	Short: "Show a principal with its referral stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrincipal,
}

var referralsCmd = &cobra.Command{
	Use:   "referrals",
	Short: "Referral ledger tools",
}

var referralsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every referral edge to an xlsx file",
	Args:  cobra.NoArgs,
	RunE:  runReferralsExport,
}

func openLedger() (*service.LedgerService, *database.DB, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Connect(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	ledger := service.NewLedgerService(
		db,
		repository.NewPrincipalRepository(db.DB),
		repository.NewReferralRepository(db.DB),
		service.LedgerConfig{
			StartingBalance:  cfg.StartingBalance,
			ReferralCredit:   cfg.ReferralCredit,
			ReferralLinkBase: fmt.Sprintf("https://t.me/%s?start=", strings.TrimPrefix(cfg.BotUsername, "@")),
		},
	)
	return ledger, db, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return nil
}

func runPrincipal(cmd *cobra.Command, args []string) error {
	id, ok := util.ParsePrincipalID(args[0])
	if !ok {
		return fmt.Errorf("invalid principal id %q", args[0])
	}

	ledger, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	principal, err := ledger.GetPrincipal(ctx, id)
	if err != nil {
		return err
	}
	stats, err := ledger.ReferralStats(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"principal": principal,
		"referrals": stats,
	})
}

func runReferralsExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	ledger, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := writeExport(cmd.Context(), ledger, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d referrals to %s\n", n, out)
	return nil
}

func writeExport(ctx context.Context, src export.ReferralSource, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := export.WriteReferrals(ctx, src, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}
