package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M42. Empty dependency URLs
// select the in-process adapters so the service runs without infrastructure.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers      []string
	KafkaDefaultTopic string

	ChainRPCURL         string
	ChainLedgerContract string
	ChainSignerKey      string
	ChainID             int64

	FacilitatorURL    string
	FacilitatorAPIKey string
	ReputationAddr    string

	JWTSecret string
	JWTIssuer string
	// AllowHeaderAuth trusts bearer values as subject ids when no JWT secret is set.
	AllowHeaderAuth bool

	TreasuryAccount       string
	ExternalCallTimeout   time.Duration
	TrustCacheTTL         time.Duration
	IdempotencyTTL        time.Duration
	ProofMaxAge           time.Duration
	SettlementConcurrency int
	MaxCampaignBudget     string
	BaseQueryPrice        string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxRetries   int
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL    string   `yaml:"postgres_url"`
		RedisURL       string   `yaml:"redis_url"`
		KafkaBrokers   []string `yaml:"kafka_brokers"`
		KafkaTopic     string   `yaml:"kafka_topic"`
		FacilitatorURL string   `yaml:"facilitator_url"`
		ReputationAddr string   `yaml:"reputation_grpc_addr"`
	} `yaml:"dependencies"`
	Chain struct {
		RPCURL         string `yaml:"rpc_url"`
		LedgerContract string `yaml:"ledger_contract"`
		ChainID        int64  `yaml:"chain_id"`
	} `yaml:"chain"`
	Trust struct {
		TreasuryAccount       string `yaml:"treasury_account"`
		ExternalCallTimeout   string `yaml:"external_call_timeout"`
		TrustCacheTTL         string `yaml:"trust_cache_ttl"`
		IdempotencyTTL        string `yaml:"idempotency_ttl"`
		ProofMaxAge           string `yaml:"proof_max_age"`
		SettlementConcurrency int    `yaml:"settlement_concurrency"`
		MaxCampaignBudget     string `yaml:"max_campaign_budget"`
		BaseQueryPrice        string `yaml:"base_query_price"`
	} `yaml:"trust"`
	Outbox struct {
		PollInterval string `yaml:"poll_interval"`
		BatchSize    int    `yaml:"batch_size"`
		MaxRetries   int    `yaml:"max_retries"`
	} `yaml:"outbox"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "M42-Trust-Layer-Service",
		HTTPPort:              8080,
		GRPCPort:              9090,
		MaxDBConns:            20,
		KafkaDefaultTopic:     "trust.events",
		AllowHeaderAuth:       true,
		TreasuryAccount:       "treasury",
		ExternalCallTimeout:   5 * time.Second,
		TrustCacheTTL:         30 * time.Second,
		IdempotencyTTL:        7 * 24 * time.Hour,
		ProofMaxAge:           5 * time.Minute,
		SettlementConcurrency: 4,
		MaxCampaignBudget:     "10000000",
		BaseQueryPrice:        "1",
		OutboxPollInterval:    2 * time.Second,
		OutboxBatchSize:       100,
		OutboxMaxRetries:      5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, err
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaDefaultTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaDefaultTopic)
	cfg.ChainRPCURL = envOrDefault("CHAIN_RPC_URL", cfg.ChainRPCURL)
	cfg.ChainLedgerContract = envOrDefault("CHAIN_LEDGER_CONTRACT", cfg.ChainLedgerContract)
	cfg.ChainSignerKey = envOrDefault("CHAIN_SIGNER_KEY", cfg.ChainSignerKey)
	cfg.ChainID = int64(envInt("CHAIN_ID", int(cfg.ChainID)))
	cfg.FacilitatorURL = envOrDefault("X402_FACILITATOR_URL", cfg.FacilitatorURL)
	cfg.FacilitatorAPIKey = envOrDefault("X402_FACILITATOR_API_KEY", cfg.FacilitatorAPIKey)
	cfg.ReputationAddr = envOrDefault("REPUTATION_GRPC_ADDR", cfg.ReputationAddr)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowHeaderAuth = envBool("ALLOW_HEADER_AUTH", cfg.AllowHeaderAuth)
	cfg.TreasuryAccount = envOrDefault("TREASURY_ACCOUNT", cfg.TreasuryAccount)
	cfg.ExternalCallTimeout = envDuration("EXTERNAL_CALL_TIMEOUT", cfg.ExternalCallTimeout)
	cfg.TrustCacheTTL = envDuration("TRUST_CACHE_TTL", cfg.TrustCacheTTL)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.ProofMaxAge = envDuration("PROOF_MAX_AGE", cfg.ProofMaxAge)
	cfg.SettlementConcurrency = envInt("SETTLEMENT_CONCURRENCY", cfg.SettlementConcurrency)
	cfg.MaxCampaignBudget = envOrDefault("MAX_CAMPAIGN_BUDGET", cfg.MaxCampaignBudget)
	cfg.BaseQueryPrice = envOrDefault("BASE_QUERY_PRICE", cfg.BaseQueryPrice)
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.ChainRPCURL != "" && (cfg.ChainLedgerContract == "" || cfg.ChainSignerKey == "") {
		return Config{}, fmt.Errorf("CHAIN_RPC_URL requires CHAIN_LEDGER_CONTRACT and CHAIN_SIGNER_KEY")
	}
	if cfg.JWTSecret == "" && !cfg.AllowHeaderAuth {
		return Config{}, fmt.Errorf("missing JWT_SECRET and ALLOW_HEADER_AUTH is disabled")
	}
	if cfg.HTTPPort <= 0 || cfg.GRPCPort <= 0 {
		return Config{}, fmt.Errorf("invalid ports http=%d grpc=%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopic != "" {
		cfg.KafkaDefaultTopic = f.Dependencies.KafkaTopic
	}
	if f.Dependencies.FacilitatorURL != "" {
		cfg.FacilitatorURL = f.Dependencies.FacilitatorURL
	}
	if f.Dependencies.ReputationAddr != "" {
		cfg.ReputationAddr = f.Dependencies.ReputationAddr
	}
	if f.Chain.RPCURL != "" {
		cfg.ChainRPCURL = f.Chain.RPCURL
	}
	if f.Chain.LedgerContract != "" {
		cfg.ChainLedgerContract = f.Chain.LedgerContract
	}
	if f.Chain.ChainID > 0 {
		cfg.ChainID = f.Chain.ChainID
	}
	if f.Trust.TreasuryAccount != "" {
		cfg.TreasuryAccount = f.Trust.TreasuryAccount
	}
	if f.Trust.SettlementConcurrency > 0 {
		cfg.SettlementConcurrency = f.Trust.SettlementConcurrency
	}
	if f.Trust.MaxCampaignBudget != "" {
		cfg.MaxCampaignBudget = f.Trust.MaxCampaignBudget
	}
	if f.Trust.BaseQueryPrice != "" {
		cfg.BaseQueryPrice = f.Trust.BaseQueryPrice
	}
	if f.Outbox.BatchSize > 0 {
		cfg.OutboxBatchSize = f.Outbox.BatchSize
	}
	if f.Outbox.MaxRetries > 0 {
		cfg.OutboxMaxRetries = f.Outbox.MaxRetries
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"trust.external_call_timeout", f.Trust.ExternalCallTimeout, &cfg.ExternalCallTimeout},
		{"trust.trust_cache_ttl", f.Trust.TrustCacheTTL, &cfg.TrustCacheTTL},
		{"trust.idempotency_ttl", f.Trust.IdempotencyTTL, &cfg.IdempotencyTTL},
		{"trust.proof_max_age", f.Trust.ProofMaxAge, &cfg.ProofMaxAge},
		{"outbox.poll_interval", f.Outbox.PollInterval, &cfg.OutboxPollInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || v <= 0 {
			return fmt.Errorf("parse config file: %s %q is not a positive duration", d.name, d.raw)
		}
		*d.dst = v
	}
	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

// envDuration accepts Go duration strings ("30s", "5m"); invalid or
// non-positive values keep the fallback.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
