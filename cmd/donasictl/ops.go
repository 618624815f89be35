package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"donasi/internal/bootstrap"
	"donasi/internal/domain"
	"donasi/internal/gateway"
	"donasi/internal/infra"
	"donasi/internal/middleware"
)

func openPostgres(ctx context.Context) (*infra.Config, *bootstrap.Stores, infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, infra.Logger{}, err
	}
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		return nil, nil, infra.Logger{}, fmt.Errorf("donasictl needs STORE_DRIVER=postgres")
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel, "donasictl")
	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, infra.Logger{}, err
	}
	return cfg, stores, logger, nil
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration sweep cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, stores, logger, err := openPostgres(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			notifier := bootstrap.NewNotifier(cfg, logger)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = notifier.Close(drainCtx)
			}()
			engine := bootstrap.NewEngine(cfg, stores, notifier, logger)
			sw, cleanup, err := bootstrap.NewSweeper(ctx, cfg, stores, engine, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := sw.SweepOnce(ctx)
			if err != nil {
				return err
			}
			if report.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "skipped: another sweep holds the lease")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d expired=%d already_expired=%d conflicts=%d not_found=%d failed=%d\n",
				report.Scanned, report.Expired, report.AlreadyExpired, report.Conflicts, report.NotFound, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d donation(s) failed to expire", report.Failed)
			}
			return nil
		},
	}
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect ledger periods",
	}

	var limit int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the latest ledger periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, _, err := openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close()
			periods, err := stores.Ledger.ListPeriods(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PERIOD\tINCOME\tEXPENSE\tBALANCE")
			for _, p := range periods {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.PeriodKey, p.TotalIncome.StringFixed(2), p.TotalExpense.StringFixed(2), p.Balance.StringFixed(2))
			}
			return tw.Flush()
		},
	}
	show.Flags().IntVarP(&limit, "limit", "n", 12, "number of periods")

	verify := &cobra.Command{
		Use:   "verify [period]",
		Short: "Recompute income from accepted donations and report drift",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, stores, _, err := openPostgres(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			var keys []string
			if len(args) == 1 {
				if !domain.ValidPeriodKey(args[0]) {
					return fmt.Errorf("period must look like 2024-03")
				}
				keys = args
			} else {
				periods, err := stores.Ledger.ListPeriods(ctx, 120)
				if err != nil {
					return err
				}
				for _, p := range periods {
					keys = append(keys, p.PeriodKey)
				}
			}
			return verifyPeriods(ctx, cmd, stores.Ledger, keys)
		},
	}

	cmd.AddCommand(show, verify)
	return cmd
}

func verifyPeriods(ctx context.Context, cmd *cobra.Command, ledger domain.LedgerRepository, keys []string) error {
	drifted := 0
	for _, key := range keys {
		drift, err := ledger.Verify(ctx, key)
		if err != nil {
			return fmt.Errorf("verify %s: %w", key, err)
		}
		status := "ok"
		if !drift.Consistent() {
			status = "DRIFT"
			drifted++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s\n", status, drift)
	}
	if drifted > 0 {
		return fmt.Errorf("%d period(s) drifted", drifted)
	}
	return nil
}

func tokenCmd() *cobra.Command {
	var (
		sub    string
		locale string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a donor session token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}
			tok, err := middleware.SignJWT(cfg.JWTSecret, sub, locale, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "donor reference")
	cmd.Flags().StringVar(&locale, "locale", "", "preferred locale (id or en)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func signCmd() *cobra.Command {
	var n gateway.Notification
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the gateway signature for a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gateway.NewVerifier(cfg.GatewayServerKey).Sign(n))
			return nil
		},
	}
	cmd.Flags().StringVar(&n.OrderID, "order-id", "", "order id (DON-...)")
	cmd.Flags().StringVar(&n.StatusCode, "status-code", "200", "gateway status code")
	cmd.Flags().StringVar(&n.GrossAmount, "gross-amount", "", "amount as sent by the gateway, e.g. 50000.00")
	_ = cmd.MarkFlagRequired("order-id")
	_ = cmd.MarkFlagRequired("gross-amount")
	return cmd
}
