// Command opsctl runs operator tasks against the marketplace database and
// the payment processor: webhook replays, plan resyncs, booking fixes and
// API key issuing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/archive"
	"github.com/ManuelReschke/TourMarket/internal/pkg/billing"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/cache"
	"github.com/ManuelReschke/TourMarket/internal/pkg/database"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/env"
	"github.com/ManuelReschke/TourMarket/internal/pkg/notify"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "opsctl",
		Short:   "TourMarket operator tools",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
	}

	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(bookingCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(archiveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services is the subset of the server wiring the commands need.
// Notifications are written in-app only; nothing is queued.
type services struct {
	repos    *repository.Repositories
	roles    *entitlements.Coordinator
	bookings *booking.Service
	webhooks *billing.WebhookService
	plans    *billing.PlanSyncService
}

func connect() *services {
	database.SetupDatabase()
	db := database.GetDB()
	repos := repository.NewRepositories(db)
	uow := database.NewUnitOfWork(db)

	// Invalidations must reach the cache the server reads from.
	roles := entitlements.NewCoordinator(repos.Role, repos.Subscription,
		entitlements.NewRedisCache(cache.GetClient(), env.GetEnvDuration("AUTHZ_CACHE_TTL", 5*time.Minute)))
	bookings := booking.NewService(repos.Booking, repos.Notification, uow, notify.Discard{})

	processor := billing.NewMercadoPagoClientFromEnv()
	reconciler := billing.NewReconciler(processor, repos.Subscription, repos.Plan, roles, uow, notify.Discard{},
		billing.WithBookingPayments(bookings))

	return &services{
		repos:    repos,
		roles:    roles,
		bookings: bookings,
		webhooks: billing.NewWebhookService(repos.WebhookEvent, reconciler, nil),
		plans:    billing.NewPlanSyncService(processor, repos.Plan, env.GetEnv("BILLING_BACK_URL", "")),
	}
}

func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(v), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Processor webhook tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "replay [payment|preapproval] [data-id]",
		Short: "Fetch a processor resource and reconcile it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := connect()
			outcome, err := svc.webhooks.Replay(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], outcome)
			return nil
		},
	})
	return cmd
}

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan catalog tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resync [plan-id]",
		Short: "Push a stored plan to the processor again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			plan, err := connect().plans.Resync(context.Background(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, plan)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := connect().repos.Plan.List(context.Background(), false)
			if err != nil {
				return err
			}
			return printJSON(cmd, plans)
		},
	})
	return cmd
}

func bookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Booking tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "quote [booking-id]",
		Short: "Show the cancellation penalty if the booking were cancelled now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc := connect()
			ctx := context.Background()
			b, err := svc.repos.Booking.GetByID(ctx, id)
			if err != nil {
				return err
			}
			p, err := svc.bookings.Quote(ctx, id, b.OwnerID)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply [booking-id] [confirm_payment|payment_declined]",
		Short: "Run a system action on a booking",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := connect().bookings.Apply(context.Background(), id, booking.Action(args[1]), 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booking %d: %s -> %s (changed=%t)\n", id, out.Result.From, out.Booking.Status, out.Result.Applied)
			return nil
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User and role tools",
	}

	create := &cobra.Command{
		Use:   "create [name] [email]",
		Short: "Create a user and print its API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := &models.User{Name: args[0], Email: args[1], Status: models.STATUS_ACTIVE}
			if err := u.Validate(); err != nil {
				return err
			}
			key, err := u.IssueAPIKey()
			if err != nil {
				return err
			}
			svc := connect()
			ctx := context.Background()
			if err := svc.repos.User.Create(ctx, u); err != nil {
				return err
			}
			if admin, _ := cmd.Flags().GetBool("admin"); admin {
				if err := svc.roles.GrantManual(ctx, u.ID, entitlements.RoleAdmin); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d created\napi key: %s\n", u.ID, key)
			return nil
		},
	}
	create.Flags().Bool("admin", false, "Grant the admin role")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "roles [user-id]",
		Short: "Show a user's role grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			set, err := connect().roles.Roles(context.Background(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, set)
		},
	})
	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Audit archive tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Print an archived cancellation or webhook document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := archive.LoadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			client, err := archive.NewClient(ctx, cfg)
			if err != nil {
				return err
			}
			raw, err := client.Get(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		},
	})
	return cmd
}
