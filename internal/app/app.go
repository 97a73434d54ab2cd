package app

import (
	"log"
	"os"

	"labelbot/internal/config"
	"labelbot/internal/httpx"
	"labelbot/internal/inbox"
	slackbot "labelbot/internal/integrations/slack"
	"labelbot/internal/metrics"
	"labelbot/internal/nudge"
	"labelbot/internal/storage/filestore"
	"labelbot/internal/storage/sqlite"
	"labelbot/internal/workflow"

	"github.com/slack-go/slack"
)

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Project=%s DataDir=%s Timezone=%s PageSize=%d ExportFormat=%s LLMProvider=%s LLMBatchSize=%d LLMExampleCount=%d LLMExampleMaxChars=%d LLMLabelGuidePath=%s ExternalHTTPTimeout=%s",
		cfg.ProjectName,
		cfg.DataDir,
		cfg.Timezone,
		cfg.LabelPageSize,
		cfg.ExportFormat,
		cfg.LLMProvider,
		cfg.LLMBatchSize,
		cfg.LLMExampleCount,
		cfg.LLMExampleMaxLen,
		cfg.LLMLabelGuidePath,
		appliedHTTPTimeout,
	)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open data dir: %v", err)
	}
	wf, err := workflow.Open(store,
		workflow.WithAuditor(sqlite.NewAudit(db)),
		workflow.WithRecorder(metrics.NewPrometheus(nil, "")),
		workflow.WithLocation(cfg.Location),
	)
	if err != nil {
		log.Fatalf("Failed to load workflow state from %s: %v", cfg.DataDir, err)
	}

	os.MkdirAll(cfg.ExportOutputDir, 0755)
	log.Printf("Export output dir: %s", cfg.ExportOutputDir)

	metrics.Serve(cfg.MetricsAddr)

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.ExternalHTTPClient()),
	)

	nudge.StartNudgeScheduler(cfg, api, wf, db)
	inbox.StartInboxScheduler(cfg, api, wf)

	log.Println("Starting Labeling Bot...")
	if err := slackbot.StartSlackBot(cfg, db, wf, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
