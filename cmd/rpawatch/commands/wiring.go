package commands

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/ai/chat"
	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/feed"
	"github.com/teranos/rpawatch/internal/httpclient"
	"github.com/teranos/rpawatch/internal/util"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/mail"
	"github.com/teranos/rpawatch/notify"
	"github.com/teranos/rpawatch/pipeline"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
	"github.com/teranos/rpawatch/remedy"
)

// stores groups the database-backed stores shared by every component
type stores struct {
	jobs       *jobs.Store
	audit      *jobs.AuditStore
	executions *records.ExecutionStore
	logs       *records.LogStore
	kb         *rca.Store
}

func newStores(database *sql.DB, log *zap.SugaredLogger) stores {
	return stores{
		jobs:       jobs.NewStore(database, log.Named("jobs")),
		audit:      jobs.NewAuditStore(database),
		executions: records.NewExecutionStore(database, log.Named("records")),
		logs:       records.NewLogStore(database, log.Named("records")),
		kb:         rca.NewStore(database),
	}
}

// services are the components built from configuration on top of the stores
type services struct {
	stores
	auth         *feed.HTTPAuthenticator
	dialer       *feed.WebsocketDialer
	notifier     *notify.Notifier
	orchestrator *pipeline.Orchestrator
}

func buildServices(ctx context.Context, cfg *am.Config, st stores, log *zap.SugaredLogger) *services {
	llm := chat.NewClient(chat.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: util.Ptr(float32(cfg.LLM.Temperature)),
		Timeout:     cfg.LLM.Timeout(),
		Logger:      log.Named("llm"),
	})

	resolver := rca.NewResolver(st.executions, st.logs, st.kb,
		rca.NewOpenAIClassifier(llm), st.jobs, log.Named("rca"))

	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, log.Named("smtp"))

	notifier := notify.NewNotifier(notify.Config{
		Subject:        cfg.Mail.Subject,
		DeveloperTo:    cfg.Mail.DeveloperTo,
		BusinessTo:     cfg.Mail.BusinessTo,
		SendsPerMinute: cfg.Mail.SendsPerMinute,
	}, st.jobs, st.executions, st.kb, notify.NewOpenAIDrafter(llm), sender, log.Named("notify"))

	auth := feed.NewHTTPAuthenticator(feed.AuthConfig{
		LoginURL:     cfg.Feed.LoginURL,
		NegotiateURL: cfg.Feed.NegotiateURL,
		WSURL:        cfg.Feed.WSURL,
		LoginType:    cfg.Feed.LoginType,
		Username:     cfg.Feed.Username,
		Password:     cfg.Feed.Password,
		Tenant:       cfg.Feed.Tenant,
	}, httpclient.New(30*time.Second))
	dialer := &feed.WebsocketDialer{HandshakeTimeout: 15 * time.Second}

	executor := remedy.NewExecutor(auth, dialer, remedy.Config{
		Timeout:       cfg.Remedy.Timeout(),
		RobotPageSize: cfg.Remedy.RobotPageSize,
	}, log.Named("remedy"))

	orchestrator := pipeline.NewOrchestrator(ctx, pipeline.Deps{
		Jobs:       st.jobs,
		Executions: st.executions,
		Resolver:   resolver,
		Notifier:   notifier,
		Remediator: executor,
		Counters:   st.kb,
		Audit:      st.audit,
	}, pipeline.Config{RunTimeout: cfg.Pipeline.RunTimeout()}, log.Named("pipeline"))

	return &services{
		stores:       st,
		auth:         auth,
		dialer:       dialer,
		notifier:     notifier,
		orchestrator: orchestrator,
	}
}
