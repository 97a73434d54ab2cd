package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	ProjectName     string `yaml:"project_name"`
	DataDir         string `yaml:"data_dir"`
	DBPath          string `yaml:"db_path"`
	ExportOutputDir string `yaml:"export_output_dir"`
	ExportFormat    string `yaml:"export_format"`
	LabelPageSize   int    `yaml:"label_page_size"`
	ReportChannelID string `yaml:"report_channel_id"`

	NudgeSchedule string `yaml:"nudge_schedule"`
	InboxDir      string `yaml:"inbox_dir"`
	InboxSchedule string `yaml:"inbox_schedule"`
	Timezone      string `yaml:"timezone"`

	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	LLMBatchSize      int    `yaml:"llm_batch_size"`
	LLMExampleCount   int    `yaml:"llm_example_count"`
	LLMExampleMaxLen  int    `yaml:"llm_example_max_chars"`
	LLMLabelGuidePath string `yaml:"llm_label_guide_path"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	MetricsAddr                string `yaml:"metrics_addr"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.ProjectName, "PROJECT_NAME")
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportOutputDir, "EXPORT_OUTPUT_DIR")
	envOverride(&cfg.ExportFormat, "EXPORT_FORMAT")
	envOverrideInt(&cfg.LabelPageSize, "LABEL_PAGE_SIZE")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.NudgeSchedule, "NUDGE_SCHEDULE")
	envOverride(&cfg.InboxDir, "INBOX_DIR")
	envOverrideAllowEmpty(&cfg.InboxSchedule, "INBOX_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.LLMBatchSize, "LLM_BATCH_SIZE")
	envOverrideInt(&cfg.LLMExampleCount, "LLM_EXAMPLE_COUNT")
	envOverrideInt(&cfg.LLMExampleMaxLen, "LLM_EXAMPLE_MAX_CHARS")
	envOverride(&cfg.LLMLabelGuidePath, "LLM_LABEL_GUIDE_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")

	if cfg.ProjectName == "" {
		cfg.ProjectName = "Labeling"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./labelbot.db"
	}
	if cfg.ExportOutputDir == "" {
		cfg.ExportOutputDir = "./exports"
	}
	if cfg.ExportFormat == "" {
		cfg.ExportFormat = "xlsx"
	}
	cfg.ExportFormat = strings.ToLower(strings.TrimSpace(cfg.ExportFormat))
	if cfg.LabelPageSize == 0 {
		cfg.LabelPageSize = 10
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "none"
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMBatchSize == 0 {
		cfg.LLMBatchSize = 20
	}
	if cfg.LLMExampleCount == 0 {
		cfg.LLMExampleCount = 20
	}
	if cfg.LLMExampleMaxLen == 0 {
		cfg.LLMExampleMaxLen = 140
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "none":
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'none', 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.ExportFormat != "xlsx" && cfg.ExportFormat != "csv" {
		log.Fatalf("invalid export_format '%s': must be xlsx or csv", cfg.ExportFormat)
	}
	if cfg.LabelPageSize < 1 || cfg.LabelPageSize > 20 {
		// Slack modals and messages cap at 50 blocks; each sample uses two.
		log.Fatalf("invalid label_page_size '%d': must be between 1 and 20", cfg.LabelPageSize)
	}
	if err := validateSchedule(cfg.NudgeSchedule); err != nil {
		log.Fatalf("invalid nudge_schedule '%s': %v", cfg.NudgeSchedule, err)
	}
	if err := validateSchedule(cfg.InboxSchedule); err != nil {
		log.Fatalf("invalid inbox_schedule '%s': %v", cfg.InboxSchedule, err)
	}
	if cfg.InboxSchedule != "" && cfg.InboxDir == "" {
		log.Fatalf("inbox_schedule is set but inbox_dir is not configured")
	}
	if cfg.LLMBatchSize < 1 {
		log.Fatalf("invalid llm_batch_size '%d': must be >= 1", cfg.LLMBatchSize)
	}
	if cfg.LLMExampleCount < 0 {
		log.Fatalf("invalid llm_example_count '%d': must be >= 0", cfg.LLMExampleCount)
	}
	if cfg.LLMExampleMaxLen < 20 {
		log.Fatalf("invalid llm_example_max_chars '%d': must be >= 20", cfg.LLMExampleMaxLen)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.LLMLabelGuidePath != "" {
		if err := validateLabelGuidePath(cfg.LLMLabelGuidePath); err != nil {
			log.Fatalf("invalid llm_label_guide_path '%s': %v", cfg.LLMLabelGuidePath, err)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) LLMEnabled() bool {
	return c.LLMProvider == "anthropic" || c.LLMProvider == "openai"
}

// validateSchedule accepts an empty spec (disabled) or a standard five-field
// cron expression, optionally with CRON_TZ.
func validateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := cron.ParseStandard(spec)
	return err
}

func validateLabelGuidePath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read label guide: %w", err)
	}
	var g struct {
		Terms        []struct{}        `yaml:"terms"`
		Descriptions map[string]string `yaml:"descriptions"`
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse label guide yaml: %w", err)
	}
	return nil
}
