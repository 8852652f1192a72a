package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/hibiken/asynq"

	"github.com/tinoosan/tillbook/internal/config"
	httpapi "github.com/tinoosan/tillbook/internal/httpapi/v1"
	"github.com/tinoosan/tillbook/internal/replication"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `tillbook serve

  Serves the v1 API on APP_ADDR using the configured store backend.
`
}
func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.AppAddr,
		Handler:           a.handler().Handler(),
		ReadTimeout:       a.cfg.AppReadTimeout,
		ReadHeaderTimeout: a.cfg.AppReadTimeout,
		WriteTimeout:      a.cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("tillbook listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server shutdown error", "err", err)
			return subcommands.ExitFailure
		}
	case err := <-errCh:
		a.log.Error("server error", "err", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type workerCmd struct {
	concurrency int
}

func (*workerCmd) Name() string     { return "worker" }
func (*workerCmd) Synopsis() string { return "apply documents replicated from other devices" }
func (*workerCmd) Usage() string {
	return `tillbook worker [-concurrency n]

  Drains REPLICATION_QUEUE on REDIS_ADDR into the local store.
`
}

func (c *workerCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.concurrency, "concurrency", 1, "Tasks applied in parallel.")
}

func (c *workerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	applier := replication.NewApplier(a.store, a.cfg.Retry(), a.cfg.Origin(), a.log)
	w := replication.NewWorker(replication.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: a.cfg.RedisAddr},
		Queue:       a.cfg.ReplicationQueue,
		Concurrency: c.concurrency,
		Logger:      a.log,
	}, applier)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type trialBalanceCmd struct {
	shop  string
	start string
	end   string
}

func (*trialBalanceCmd) Name() string     { return "trial-balance" }
func (*trialBalanceCmd) Synopsis() string { return "print the trial balance for a shop" }
func (*trialBalanceCmd) Usage() string {
	return `tillbook trial-balance -shop <id> [-s YYYY-MM-DD] [-d YYYY-MM-DD]
`
}

func (c *trialBalanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.shop, "shop", "", "Shop id.")
	f.StringVar(&c.start, "s", "", "First day included.")
	f.StringVar(&c.end, "d", "", "Last day included (defaults to everything).")
}

func (c *trialBalanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	start, end, err := dayRange(c.start, c.end, a.cfg.Location())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	tb, err := a.journal.GenerateTrialBalance(ctx, start, end, c.shop)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Code\tAccount\tDebits\tCredits\t\n")
	for _, r := range tb.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Account.Code, r.Account.Name, r.Debits.StringFixed(2), r.Credits.StringFixed(2))
	}
	fmt.Fprintf(tw, "\tTotal (%s)\t%s\t%s\t\n", tb.Currency, tb.TotalDebits.StringFixed(2), tb.TotalCredits.StringFixed(2))
	_ = tw.Flush()
	if !tb.Balanced() {
		fmt.Fprintln(os.Stderr, "warning: trial balance does not balance")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type historyCmd struct {
	shop    string
	account string
	start   string
	end     string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the running balance of one account" }
func (*historyCmd) Usage() string {
	return `tillbook history -shop <id> -account <code> [-s YYYY-MM-DD] [-d YYYY-MM-DD]
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.shop, "shop", "", "Shop id.")
	f.StringVar(&c.account, "account", "1000", "Account code.")
	f.StringVar(&c.start, "s", "", "First day included.")
	f.StringVar(&c.end, "d", "", "Last day included.")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	start, end, err := dayRange(c.start, c.end, a.cfg.Location())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	h, err := a.journal.GetAccountHistory(ctx, c.account, start, end, c.shop)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s %s (%s)\n", h.Account.Code, h.Account.Name, h.Currency)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Date\tTransaction\tDescription\tDebit\tCredit\tBalance\n")
	fmt.Fprintf(tw, "\t\tOpening balance\t\t\t%s\n", h.OpeningBalance.StringFixed(2))
	for _, r := range h.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.PostingDate, r.TransactionID, r.Description,
			r.Debit.StringFixed(2), r.Credit.StringFixed(2), r.Balance.StringFixed(2))
	}
	_ = tw.Flush()
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	user string
	shop string
	ttl  time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue a bearer token signed with AUTH_SECRET" }
func (*tokenCmd) Usage() string {
	return `tillbook token -user <id> -shop <id> [-ttl 12h]
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User id (subject).")
	f.StringVar(&c.shop, "shop", "", "Shop id.")
	f.DurationVar(&c.ttl, "ttl", 12*time.Hour, "Token lifetime.")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if cfg.AuthSecret == "" || c.user == "" || c.shop == "" {
		fmt.Fprintln(os.Stderr, "AUTH_SECRET, -user and -shop are required")
		return subcommands.ExitUsageError
	}
	tok, err := httpapi.IssueToken(cfg.AuthSecret, httpapi.Identity{UserID: c.user, ShopID: c.shop}, c.ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(tok)
	return subcommands.ExitSuccess
}
