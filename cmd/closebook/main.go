// Command closebook drives the ledger closing engine against a local ledger
// database: registering, posting, reversing, correcting and closing journal
// entries, plus the operational tooling (projection catch-up, full rebuilds,
// read model inspection).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aneshas/closebook/app"
	"github.com/aneshas/closebook/config"
	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/metrics"
	"github.com/aneshas/closebook/projection"
	"github.com/aneshas/closebook/readmodel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// engine bundles everything a subcommand needs
type engine struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *eventstore.EventStore
	projector *projection.Projector
	handlers  *app.Handlers
	queries   *app.Queries
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		e.log.Error("closing event store", "err", err)
	}
}

// serveMetrics exposes the prometheus endpoint for the duration of
// long-running commands such as rebuilds
func (e *engine) serveMetrics() {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		if err := http.ListenAndServe(e.cfg.MetricsAddr, mux); err != nil {
			e.log.Warn("metrics endpoint unavailable", "addr", e.cfg.MetricsAddr, "err", err)
		}
	}()
}

func newEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	var opt eventstore.Option

	if cfg.Driver == "postgres" {
		opt = eventstore.WithPostgresDB(cfg.PostgresURL)
	} else {
		opt = eventstore.WithSQLiteDB(cfg.SQLitePath)
	}

	store, err := eventstore.New(eventstore.NewJSONEncoder(ledger.Events()...), opt)
	if err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	projector, err := projection.NewProjector(
		store.DB(), store,
		projection.WithBatchSize(cfg.ReplayBatchSize),
		projection.WithLogger(log),
		projection.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	entries, err := readmodel.NewEntryList(store.DB())
	if err != nil {
		return nil, err
	}

	balances, err := readmodel.NewTrialBalance(store.DB())
	if err != nil {
		return nil, err
	}

	projector.Register(entries.Projection(), balances.Projection())

	return &engine{
		cfg:   cfg,
		log:   log,
		store: store,

		projector: projector,
		handlers: app.NewHandlers(
			store, projector,
			app.WithConflictRetries(cfg.ConflictRetries),
			app.WithLogger(log),
			app.WithMetrics(m),
		),
		queries: app.NewQueries(entries, balances),
	}, nil
}

func newRootCommand() *cobra.Command {
	root := cobra.Command{
		Use:           "closebook",
		Short:         "Event-sourced ledger closing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCatchUpCommand(),
		newRebuildCommand(),
		newStaleCommand(),
		newVerifyCommand(),
		newEntriesCommand(),
		newTrialBalanceCommand(),
	)

	root.AddCommand(newCommandCommands()...)

	return &root
}

func newCatchUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catchup",
		Short: "Replay events the projections missed up to the head of the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			e.serveMetrics()

			if err := e.projector.CatchUp(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "projections caught up")

			return nil
		},
	}
}

func newRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [projection-id]",
		Short: "Truncate a projection and refold it from the full event log",
		Long: `Truncate the projection's storage, reset its cursor and refold the entire
event log from the beginning. Interrupting a rebuild is safe - the cursor is
checkpointed after every event, so a follow-up catchup resumes where the
rebuild stopped. Without an argument every registered projection is rebuilt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			e.serveMetrics()

			ids := []string{readmodel.EntryListID, readmodel.TrialBalanceID}

			if len(args) == 1 {
				ids = args
			}

			for _, id := range ids {
				if err := e.projector.Rebuild(cmd.Context(), id); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "projection %s rebuilt\n", id)
			}

			return nil
		},
	}
}

func newStaleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "List projections marked stale and awaiting a rebuild",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			ids, err := e.projector.Stale(cmd.Context())
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stale projections")

				return nil
			}

			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}

			return nil
		},
	}
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the projected ledger is healthy",
		Long: `Check that no projection is marked stale and that the trial balance nets
to zero overall (total debits equal total credits), which holds whenever
every posted entry in the log was balanced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			ids, err := e.projector.Stale(cmd.Context())
			if err != nil {
				return err
			}

			if len(ids) > 0 {
				return fmt.Errorf("stale projections need a rebuild: %v", ids)
			}

			views, err := e.queries.TrialBalance(cmd.Context())
			if err != nil {
				return err
			}

			var debits, credits int64

			for _, v := range views {
				debits += v.DebitTotal
				credits += v.CreditTotal
			}

			if debits != credits {
				return fmt.Errorf("trial balance out of balance: debit %d vs credit %d", debits, credits)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d accounts, debit=%d credit=%d\n", len(views), debits, credits)

			return nil
		},
	}
}

func newEntriesCommand() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := cobra.Command{
		Use:   "entries",
		Short: "List journal entries from the read model",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			views, err := e.queries.Entries(cmd.Context(), app.ListEntriesQuery{
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			for _, v := range views {
				fmt.Fprintf(w, "%s  %-16s  %s  %s  %s  debit=%d credit=%d\n",
					v.EntryID, v.Status, v.TransactionDate, v.VoucherNo, v.Currency, v.DebitTotal, v.CreditTotal,
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by entry status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")

	return &cmd
}

func newTrialBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the trial balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			defer e.close()

			views, err := e.queries.TrialBalance(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			var debits, credits int64

			for _, v := range views {
				fmt.Fprintf(w, "%-12s %s  debit=%d credit=%d net=%d\n",
					v.Account, v.Currency, v.DebitTotal, v.CreditTotal, v.Net,
				)

				debits += v.DebitTotal
				credits += v.CreditTotal
			}

			fmt.Fprintf(w, "total debit=%d credit=%d\n", debits, credits)

			return nil
		},
	}
}
