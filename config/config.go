// Package config loads the client configuration: service endpoints,
// credentials, and the flow path table.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FlowPaths maps each pipeline step to the flow it executes on the workflow
// service. Paths are configuration so environments can pin flow versions
// independently.
type FlowPaths struct {
	StatuteRetrieve      string `mapstructure:"statute_retrieve" yaml:"statute_retrieve"`
	PrecedentRetrieve    string `mapstructure:"precedent_retrieve" yaml:"precedent_retrieve"`
	Models               string `mapstructure:"models" yaml:"models"`
	IntentClassification string `mapstructure:"intent_classification" yaml:"intent_classification"`
	TitleGeneration      string `mapstructure:"title_generation" yaml:"title_generation"`
	SelfQuery            string `mapstructure:"self_query" yaml:"self_query"`
	QueryReconstruction  string `mapstructure:"query_reconstruction" yaml:"query_reconstruction"`
	QueryExpansion       string `mapstructure:"query_expansion" yaml:"query_expansion"`
	IndexAnalysis        string `mapstructure:"index_analysis" yaml:"index_analysis"`
	GlobalAnalysis       string `mapstructure:"global_analysis" yaml:"global_analysis"`
	AnalyzePlan          string `mapstructure:"analyze_plan" yaml:"analyze_plan"`
	SystemPrompt         string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// DefaultFlowPaths returns the production flow names.
func DefaultFlowPaths() FlowPaths {
	return FlowPaths{
		StatuteRetrieve:      "lexai-statute-retrieve",
		PrecedentRetrieve:    "lexai-precedent-retrieve",
		Models:               "lexbase-models-prod",
		IntentClassification: "lexai-intent-classification",
		TitleGeneration:      "lexai-title-generation",
		SelfQuery:            "lexai-self-query",
		QueryReconstruction:  "lexai-query-reconstruction",
		QueryExpansion:       "lexai-query-expansion",
		IndexAnalysis:        "lexai-local-index-analysis-prod",
		GlobalAnalysis:       "lexai-global-analysis-prod",
		AnalyzePlan:          "lexai-analyze-plan-prod",
		SystemPrompt:         "lexbase-system-prompt",
	}
}

// WorkflowConfig points at the workflow service.
type WorkflowConfig struct {
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`
	Token     string  `mapstructure:"token" yaml:"token"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// ResearchConfig tunes the research pipeline.
type ResearchConfig struct {
	MaxRetry int `mapstructure:"max_retry" yaml:"max_retry"`
}

// LoggingConfig selects logger behavior.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Config is the full client configuration.
type Config struct {
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Flows    FlowPaths      `mapstructure:"flows" yaml:"flows"`
	Research ResearchConfig `mapstructure:"research" yaml:"research"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workflow.base_url", "http://localhost:8080")
	v.SetDefault("workflow.rate_limit", 0)
	v.SetDefault("workflow.rate_burst", 1)
	v.SetDefault("research.max_retry", 2)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	fp := DefaultFlowPaths()
	v.SetDefault("flows.statute_retrieve", fp.StatuteRetrieve)
	v.SetDefault("flows.precedent_retrieve", fp.PrecedentRetrieve)
	v.SetDefault("flows.models", fp.Models)
	v.SetDefault("flows.intent_classification", fp.IntentClassification)
	v.SetDefault("flows.title_generation", fp.TitleGeneration)
	v.SetDefault("flows.self_query", fp.SelfQuery)
	v.SetDefault("flows.query_reconstruction", fp.QueryReconstruction)
	v.SetDefault("flows.query_expansion", fp.QueryExpansion)
	v.SetDefault("flows.index_analysis", fp.IndexAnalysis)
	v.SetDefault("flows.global_analysis", fp.GlobalAnalysis)
	v.SetDefault("flows.analyze_plan", fp.AnalyzePlan)
	v.SetDefault("flows.system_prompt", fp.SystemPrompt)
}

// Load reads configuration from the given YAML file, falling back to
// defaults and DEEPRESEARCH_* environment variables. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Research.MaxRetry < 0 {
		return nil, fmt.Errorf("research.max_retry must not be negative")
	}
	return &cfg, nil
}
