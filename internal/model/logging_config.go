package model

// -------------------- PROVIDER CONFIG --------------------

type ProviderType string

const (
	ProviderELK        ProviderType = "elk"
	ProviderDatadog    ProviderType = "datadog"
	ProviderSentry     ProviderType = "sentry"
	ProviderSplunk     ProviderType = "splunk"
	ProviderCloudWatch ProviderType = "cloudwatch"
	ProviderCustom     ProviderType = "custom"
)

// LogProvider describes one delivery target. The pipeline treats providers as
// opaque batch sinks; per-provider transport lives in internal/provider.
type LogProvider struct {
	Name          string                 `json:"name"`
	Type          ProviderType           `json:"type"`
	Enabled       bool                   `json:"enabled"`
	Config        map[string]interface{} `json:"config,omitempty"`
	Endpoint      string                 `json:"endpoint,omitempty"`
	APIKey        string                 `json:"api_key,omitempty"`
	BatchSize     int                    `json:"batch_size"`
	FlushInterval int                    `json:"flush_interval"` // seconds
	RetryAttempts int                    `json:"retry_attempts"`
	Timeout       int                    `json:"timeout"` // seconds
}

// -------------------- SAMPLING / FILTERING --------------------

// SamplingRule keeps a fraction of matching entries. Rules are evaluated in
// priority order (highest first); the first match decides.
type SamplingRule struct {
	Name     string      `json:"name"`
	Level    LogLevel    `json:"level,omitempty"`
	Category LogCategory `json:"category,omitempty"`
	Source   string      `json:"source,omitempty"`
	Rate     float64     `json:"rate"` // 0.0 - 1.0, fraction kept
	Priority int         `json:"priority"`
}

type FilterAction string

const (
	FilterInclude FilterAction = "include"
	FilterExclude FilterAction = "exclude"
)

// FilterRule includes or excludes matching entries. Highest priority wins;
// entries matching no rule are included.
type FilterRule struct {
	Name      string       `json:"name"`
	Condition string       `json:"condition"`
	Action    FilterAction `json:"action"`
	Priority  int          `json:"priority"`
}

// -------------------- CONFIGURATION SECTIONS --------------------

type SamplingConfig struct {
	Enabled bool           `json:"enabled"`
	Rate    float64        `json:"rate"` // global fallback
	Rules   []SamplingRule `json:"rules,omitempty"`
}

type FilteringConfig struct {
	Enabled bool         `json:"enabled"`
	Rules   []FilterRule `json:"rules,omitempty"`
}

type EnrichmentConfig struct {
	IncludeDeviceInfo   bool `json:"include_device_info"`
	IncludeLocationInfo bool `json:"include_location_info"`
	IncludeUserContext  bool `json:"include_user_context"`
}

type RetentionConfig struct {
	LocalDays  int `json:"local_days"`
	RemoteDays int `json:"remote_days"`
}

type PrivacyConfig struct {
	MaskPII       bool     `json:"mask_pii"`
	ExcludeFields []string `json:"exclude_fields,omitempty"`
	HashUserIDs   bool     `json:"hash_user_ids"`
}

type PerformanceConfig struct {
	MaxBatchSize int `json:"max_batch_size"`
	MaxQueueSize int `json:"max_queue_size"`
}

// LoggingConfiguration is the pipeline's runtime configuration. It is mutated
// only through Pipeline.UpdateConfiguration and read by every pipeline
// operation.
type LoggingConfiguration struct {
	Providers   []LogProvider     `json:"providers"`
	GlobalTags  []string          `json:"global_tags,omitempty"`
	Sampling    SamplingConfig    `json:"sampling"`
	Filtering   FilteringConfig   `json:"filtering"`
	Enrichment  EnrichmentConfig  `json:"enrichment"`
	Retention   RetentionConfig   `json:"retention"`
	Privacy     PrivacyConfig     `json:"privacy"`
	Performance PerformanceConfig `json:"performance"`
}

// DefaultLoggingConfiguration mirrors the shipped defaults: sampling off,
// filtering on with no rules, PII masking on, modest queue bounds.
func DefaultLoggingConfiguration() LoggingConfiguration {
	return LoggingConfiguration{
		Sampling:  SamplingConfig{Enabled: false, Rate: 1.0},
		Filtering: FilteringConfig{Enabled: true},
		Enrichment: EnrichmentConfig{
			IncludeDeviceInfo:   true,
			IncludeLocationInfo: false,
			IncludeUserContext:  true,
		},
		Retention: RetentionConfig{LocalDays: 7, RemoteDays: 90},
		Privacy: PrivacyConfig{
			MaskPII:       true,
			ExcludeFields: []string{"password", "token", "secret", "api_key"},
			HashUserIDs:   true,
		},
		Performance: PerformanceConfig{MaxBatchSize: 50, MaxQueueSize: 1000},
	}
}
