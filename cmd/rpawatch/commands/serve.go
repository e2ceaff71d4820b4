package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/db"
	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/feed"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/pulse/replies"
	"github.com/teranos/rpawatch/pulse/scanner"
	"github.com/teranos/rpawatch/server"
)

// ServeCmd runs the whole service
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the feed listener, fault pipeline, reply watcher and REST API",
	Long: `Run rpawatch as a service.

The live execution feed is stored as it arrives, faulted executions open jobs,
each job is classified and mailed for approval, and approving replies restart
the process. The REST API and /metrics listen on server.port.

Scanner and reply intervals follow edits to the config file while running.`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	log := logger.Logger

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.ValidateServe(); err != nil {
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		return errors.Wrap(err, "configuration is not ready to serve")
	}

	dbPath := dbPathFlag
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	database, err := db.OpenWithMigrations(dbPath, log)
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	defer database.Close()

	printStartupBanner(verbosity, dbPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := buildServices(ctx, cfg, newStores(database, log), log)

	scan := scanner.NewScannerWithContext(ctx, svc.executions, svc.jobs, svc.orchestrator, svc.audit,
		scanner.Config{Interval: cfg.Scanner.Interval()}, log.Named("scanner"))

	listener := feed.NewListenerWithContext(ctx, svc.auth, svc.dialer, svc.executions, svc.logs, scan,
		feed.Config{
			PageSize:        cfg.Feed.PageSize,
			LogPageSize:     cfg.Feed.LogPageSize,
			MinBackoff:      cfg.Feed.MinBackoff(),
			MaxBackoff:      cfg.Feed.MaxBackoff(),
			RefreshInterval: cfg.Feed.RefreshInterval(),
		}, log.Named("feed"))

	poller := mail.NewIMAPPoller(mail.IMAPConfig{
		Addr:     cfg.Mail.IMAPAddr,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		Mailbox:  cfg.Mail.Mailbox,
	}, log.Named("imap"))
	watcher := replies.NewWatcherWithContext(ctx, poller, svc.jobs, svc.orchestrator,
		replies.Config{Interval: cfg.Replies.Interval()}, log.Named("replies"))

	api := server.New(server.Deps{
		Jobs:       svc.jobs,
		Audit:      svc.audit,
		Executions: svc.executions,
		Logs:       svc.logs,
		KB:         svc.kb,
		Pipeline:   svc.orchestrator,
		Feed:       listener,
	}, server.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Named("server"))

	if err := api.Start(); err != nil {
		svc.orchestrator.Close()
		return err
	}
	scan.Start()
	listener.Start()
	watcher.Start()

	cw := startConfigWatcher(scan, watcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- shutdown(cw, api, listener, scan, watcher, svc, cancel)
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("rpawatch stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}

// startConfigWatcher applies interval changes from the last config file in
// the cascade. Returns nil when no file is in use.
func startConfigWatcher(scan *scanner.Scanner, watcher *replies.Watcher) *am.ConfigWatcher {
	files := am.FilesUsed()
	if len(files) == 0 {
		return nil
	}
	path := files[len(files)-1]

	cw, err := am.NewConfigWatcher(path, logger.Logger.Named("config"))
	if err != nil {
		logger.Warnw("Config hot reload disabled", "path", path, "error", err)
		return nil
	}
	cw.OnReload(func(c *am.Config) error {
		scan.SetInterval(c.Scanner.Interval())
		watcher.SetInterval(c.Replies.Interval())
		return nil
	})
	am.SetGlobalWatcher(cw)
	cw.Start()
	return cw
}

// shutdown stops intake before the pipeline so no new runs start
func shutdown(cw *am.ConfigWatcher, api *server.Server, listener *feed.Listener, scan *scanner.Scanner,
	watcher *replies.Watcher, svc *services, cancel context.CancelFunc) error {
	if cw != nil {
		if err := cw.Stop(); err != nil {
			logger.Warnw("Failed to stop config watcher", "error", err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	err := api.Shutdown(shutdownCtx)

	listener.Stop()
	watcher.Stop()
	scan.Stop()
	cancel()
	svc.orchestrator.Close()
	return err
}
