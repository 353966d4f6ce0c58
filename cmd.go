package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"askweb/internal/api"
	"askweb/internal/auth"
	"askweb/internal/backend"
	"askweb/internal/config"
	"askweb/internal/credit"
	"askweb/internal/history"
	"askweb/internal/ledger"
	"askweb/internal/logging"
	"askweb/internal/progress"
	"askweb/internal/session"
	"askweb/internal/storage"
	"askweb/internal/ui"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	kv      storage.Storage
	ledger  ledger.Ledger
	auth    *auth.Manager
	client  *backend.Client
	orch    *session.Orchestrator
	display *ui.Display

	closeLog func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, closeLog, err := logging.New(logging.Options{Path: cfg.LogPath, Verbose: cfg.Verbose})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	kv, err := storage.Open(cfg.StorageDriver, cfg.StoragePath)
	if err != nil {
		closeLog()
		return nil, errors.Wrap(err, "failed to open storage")
	}

	l, err := ledger.Open(ctx, cfg.LedgerDriver, cfg.DatabaseURL, kv)
	if err != nil {
		kv.Close()
		closeLog()
		return nil, errors.Wrap(err, "failed to open credit ledger")
	}

	display := ui.NewDisplay(os.Stdout)
	accounts := auth.NewManager(kv, l, cfg.SignupCredits, logger.Named("auth"))
	client := backend.NewClient(cfg.BackendURL)
	sim := progress.New(
		progress.WithInterval(cfg.ProgressInterval),
		progress.WithObserver(display.PrintStep),
	)

	orch := session.New(
		history.NewStore(kv, cfg.HistoryKey, cfg.MaxRecords, logger.Named("history")),
		client,
		accounts,
		credit.NewGate(l, logger.Named("credit")),
		sim,
		session.WithRequireLogin(cfg.RequireLogin),
		session.WithTimeout(cfg.BackendTimeout),
		session.WithLogger(logger.Named("session")),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		ledger:   l,
		auth:     accounts,
		client:   client,
		orch:     orch,
		display:  display,
		closeLog: closeLog,
	}

	a.auth.Restore(ctx)
	if err := a.orch.Restore(ctx); err != nil {
		a.logger.Warn("starting with empty history", zap.Error(err))
	}
	return a, nil
}

func (a *app) Close() {
	a.ledger.Close()
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	a.closeLog()
}

// reportedError marks an error the display has already shown.
type reportedError struct{ err error }

func (r *reportedError) Error() string { return r.err.Error() }
func (r *reportedError) Unwrap() error { return r.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// newRootCmd returns the command tree and a func that releases whatever the
// executed command opened.
func newRootCmd() (*cobra.Command, func()) {
	var (
		configFile string
		a          *app
	)

	root := &cobra.Command{
		Use:           "askweb",
		Short:         "Ask questions, get answers summarized from the web",
		Long:          `askweb sends questions to a web search backend and shows the summarized answer with its sources. Follow-up questions build on an earlier answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(configFile)
			if err != nil {
				return err
			}
			bindFlags(v, cmd)

			cfg := config.FromViper(v)
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "configuration error")
			}

			a, err = newApp(cmd.Context(), cfg)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), a, os.Stdin)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ~/.askweb/config.yaml)")
	flags.String("backend-url", "", "search backend URL")
	flags.Duration("timeout", 0, "give up on a search after this long (0 waits indefinitely)")
	flags.String("storage", "", "storage driver: file or sqlite")
	flags.BoolP("verbose", "v", false, "log to stderr as well")

	root.AddCommand(
		newSearchCmd(&a),
		newHistoryCmd(&a),
		newViewCmd(&a),
		newClearCmd(&a),
		newLoginCmd(&a),
		newLogoutCmd(&a),
		newCreditsCmd(&a),
		newServeCmd(&a),
	)

	return root, func() {
		if a != nil {
			a.Close()
		}
	}
}

// bindFlags lets explicitly set flags override config and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for flag, key := range map[string]string{
		"backend-url": "backend.url",
		"timeout":     "backend.timeout",
		"storage":     "storage.driver",
		"verbose":     "verbose",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
}

func newSearchCmd(a **app) *cobra.Command {
	var followupTo string
	var followup bool

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Run a single search and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			query := strings.Join(args, " ")
			isFollowup := followup || followupTo != ""
			target := ""
			if followupTo != "" {
				id, err := (*a).orch.ResolveID(followupTo)
				if err != nil {
					(*a).display.PrintError(err)
					return reported(err)
				}
				target = id
			}
			_, err := runSearch(ctx, *a, query, isFollowup, target)
			return reported(err)
		},
	}
	cmd.Flags().BoolVarP(&followup, "followup", "f", false, "follow up on the most recent search")
	cmd.Flags().StringVar(&followupTo, "to", "", "follow up on the search with this id")
	return cmd
}

func newHistoryCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past searches",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			state := (*a).orch.CurrentSession()
			(*a).display.PrintHistory(state.Records, state.ActiveID)
		},
	}
}

func newViewCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Show a past search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reported(viewRecord(*a, args[0]))
		},
	}
}

func newClearCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the search history",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			(*a).orch.ClearHistory(cmd.Context())
			(*a).display.PrintSuccess("Search history cleared")
		},
	}
}

func newLoginCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reported(login(cmd.Context(), *a, args[0]))
		},
	}
}

func newLogoutCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logout(cmd.Context(), *a)
		},
	}
}

func newCreditsCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show remaining credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reported(showCredits(cmd.Context(), *a))
		},
	}
}

func newServeCmd(a **app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search session over HTTP for a web front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = (*a).cfg.ServerAddr
			}
			checkBackend(ctx, *a)

			gin.SetMode(gin.ReleaseMode)
			h := api.NewHandler((*a).orch, (*a).auth, (*a).ledger, (*a).logger.Named("api"))
			router := api.NewRouter(h, (*a).cfg.CORSOrigins)

			(*a).display.PrintInfo(fmt.Sprintf("Serving on http://%s", addr))
			return api.Serve(ctx, addr, router, (*a).logger.Named("api"))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

func checkBackend(ctx context.Context, a *app) {
	if err := a.client.HealthCheck(ctx); err != nil {
		a.logger.Warn("backend health check failed", zap.Error(err))
		a.display.PrintWarning(fmt.Sprintf("Search backend check failed: %v", err))
	}
}

// runSearch submits one search and renders its outcome.
func runSearch(ctx context.Context, a *app, query string, followup bool, targetID string) (history.Record, error) {
	a.display.PrintUserMessage(query, followup)

	var (
		rec history.Record
		err error
	)
	if followup {
		rec, err = a.orch.SubmitFollowup(ctx, query, targetID)
	} else {
		rec, err = a.orch.SubmitSearch(ctx, query)
	}

	switch {
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, session.ErrCancelled):
		// reported by whoever replaced or stopped it
		return rec, err
	case err != nil:
		a.display.PrintError(err)
		return rec, err
	}

	printRecord(a, rec)
	return rec, nil
}

func printRecord(a *app, rec history.Record) {
	if parent, ok := a.orch.Parent(rec); ok {
		a.display.PrintRecord(rec, &parent)
		return
	}
	a.display.PrintRecord(rec, nil)
}

func viewRecord(a *app, ref string) error {
	id, err := a.orch.ResolveID(ref)
	if err == nil {
		var rec history.Record
		if rec, err = a.orch.ViewRecord(id); err == nil {
			printRecord(a, rec)
			return nil
		}
	}
	a.display.PrintError(err)
	return err
}

func login(ctx context.Context, a *app, email string) error {
	user, err := a.auth.Login(ctx, email)
	if err != nil {
		a.display.PrintError(err)
		return err
	}
	a.display.PrintSuccess("Signed in as " + user.Email)
	return showCredits(ctx, a)
}

func logout(ctx context.Context, a *app) {
	if err := a.auth.Logout(ctx); err != nil {
		a.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
	a.display.PrintSuccess("Signed out")
}

func showCredits(ctx context.Context, a *app) error {
	user := a.auth.CurrentUser()
	if user == nil {
		a.display.PrintError(session.ErrAuthRequired)
		return session.ErrAuthRequired
	}
	balance, err := a.ledger.Balance(ctx, user.ID)
	if err != nil {
		a.logger.Error("failed to read balance", zap.String("user_id", user.ID), zap.Error(err))
		a.display.PrintError(errors.New("could not read credits, please try again"))
		return err
	}
	a.display.PrintCredits(user, balance)
	return nil
}
