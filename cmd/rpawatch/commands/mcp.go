package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/agent"
	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/db"
	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/logger"
)

// MCPCmd serves the assistant tool set over stdio
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve job tools to an assistant over the Model Context Protocol",
	Long: `Serve get_job, get_rca, send_mail, perform_action and post_audit_log over
stdio. Logs go to stderr.

send_mail is available when mail.smtp_host and mail.developer_to are set.
perform_action restarts through the configured feed credentials.`,
	RunE: runMCP,
}

func init() {
	MCPCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	log := logger.Logger.Named("mcp")

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return err
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := buildServices(ctx, cfg, newStores(database, log), log)
	defer svc.orchestrator.Close()

	deps := agent.Deps{
		Jobs:     svc.jobs,
		KB:       svc.kb,
		Pipeline: svc.orchestrator,
		Audit:    svc.audit,
	}
	if cfg.Mail.SMTPHost != "" && cfg.Mail.DeveloperTo != "" {
		deps.Mail = svc.notifier
	}

	return agent.NewMCPServer(deps, log).Serve()
}
