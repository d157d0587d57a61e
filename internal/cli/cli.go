// Package cli implements gigctl, the operator tool for sweeps, rule
// administration, worker verification and ledger checks.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gighire/backend/internal/autorelease"
	"github.com/gighire/backend/internal/config"
	"github.com/gighire/backend/internal/logging"
)

type root struct {
	configFile string
	logLevel   string
	open       Opener
	app        *App
	close      func()
}

// BuildCLI returns the gigctl command tree.
func BuildCLI() *cobra.Command {
	return newRoot(OpenApp)
}

func newRoot(open Opener) *cobra.Command {
	r := &root{open: open}
	rootCmd := &cobra.Command{
		Use:           "gigctl",
		Short:         "Operate the gig booking and escrow backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return r.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if r.close != nil {
				r.close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&r.configFile, "config", "c", "configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(r.sweepCommand())
	rootCmd.AddCommand(r.rulesCommand())
	rootCmd.AddCommand(r.workersCommand())
	rootCmd.AddCommand(r.reconcileCommand())
	rootCmd.AddCommand(r.escrowCheckCommand())
	return rootCmd
}

func (r *root) connect(ctx context.Context) error {
	cfg, err := config.Load(r.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(os.Stderr, r.logLevel, "console")
	app, closeFn, err := r.open(ctx, cfg, log)
	if err != nil {
		return err
	}
	r.app, r.close = app, closeFn
	return nil
}

func (r *root) sweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a periodic sweep once",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "auto-release",
		Short: "Release escrow for bookings matching an enabled rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := r.app.Engine.RunSweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "selections",
		Short: "Unpick selections past the acceptance window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := r.app.Jobs.ExpireSelections(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "jobs",
		Short: "Expire open jobs past their deadline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := r.app.Jobs.ExpireJobs(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	})
	return cmd
}

func (r *root) rulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage auto-release rules",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := r.app.Engine.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rules)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert the default rules if the table is empty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := r.app.Engine.SeedRules(cmd.Context(), autorelease.DefaultRules())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rules\n", n)
			return nil
		},
	})
	for _, enabled := range []bool{true, false} {
		use := "disable"
		if enabled {
			use = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use + " <rule-id>",
			Short: use + " a rule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid rule id: %w", err)
				}
				rule, err := r.app.Engine.SetRuleEnabled(cmd.Context(), id, enabled)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rule)
			},
		})
	}
	return cmd
}

func (r *root) workersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Manage worker verification",
	}
	var pending bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var verified *bool
			if pending {
				f := false
				verified = &f
			}
			users, err := r.app.Registry.ListWorkers(cmd.Context(), verified, 0)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
	list.Flags().BoolVar(&pending, "pending", false, "only unverified workers")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <user-id>",
		Short: "Mark a worker verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			u, err := r.app.Registry.SetVerified(cmd.Context(), id, true)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	})
	return cmd
}

func (r *root) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <user-id>",
		Short: "Compare a wallet with its replayed transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			rec, err := r.app.Ledger.Reconcile(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
				return err
			}
			if !rec.Consistent {
				return fmt.Errorf("wallet %s is inconsistent with its history", id)
			}
			return nil
		},
	}
}

func (r *root) escrowCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "escrow-check",
		Short: "Check that total escrow equals the budgets of held bookings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			check, err := r.app.Ledger.CheckEscrowInvariant(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), check); err != nil {
				return err
			}
			if !check.Consistent {
				return fmt.Errorf("escrow mismatch: wallets hold %d, bookings hold %d", check.TotalEscrow, check.TotalHeld)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
