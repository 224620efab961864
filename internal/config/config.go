// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration, immutable after Load.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Predict    PredictConfig    `mapstructure:"predict"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Opinion    OpinionConfig    `mapstructure:"opinion"`
	Maker      MakerConfig      `mapstructure:"maker"`
	Arb        ArbConfig        `mapstructure:"arb"`
	Dependency DependencyConfig `mapstructure:"dependency"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings and global gates.
type AppConfig struct {
	Name             string        `mapstructure:"name"`
	Environment      string        `mapstructure:"environment"`
	LogLevel         string        `mapstructure:"log_level"`
	EnableTrading    bool          `mapstructure:"enable_trading"`
	AutoConfirmAll   bool          `mapstructure:"auto_confirm_all"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	HealthPort       int           `mapstructure:"health_port"`
	AlertWebhookURL  string        `mapstructure:"alert_webhook_url"`
	AlertMinInterval time.Duration `mapstructure:"alert_min_interval"`
	Dashboard        bool          `mapstructure:"dashboard"`
}

// PredictConfig holds the primary market-making venue's REST/WS settings
// and signing identity, passed opaquely to OrderSubmitter.
type PredictConfig struct {
	APIBaseURL         string        `mapstructure:"api_base_url"`
	APIKey             string        `mapstructure:"api_key"`
	JWTToken           string        `mapstructure:"jwt_token"`
	PrivateKey         string        `mapstructure:"private_key"`
	AccountAddress     string        `mapstructure:"account_address"`
	WsEnabled          bool          `mapstructure:"ws_enabled"`
	WsURL              string        `mapstructure:"ws_url"`
	WsTopicKey         string        `mapstructure:"ws_topic_key"` // tokenId|conditionId|eventId
	WsAPIKey           string        `mapstructure:"ws_api_key"`
	WsStale            time.Duration `mapstructure:"ws_stale"`
	WsResetOnReconnect bool          `mapstructure:"ws_reset_on_reconnect"`
}

// PolymarketConfig holds the first peer venue's settings.
type PolymarketConfig struct {
	GammaURL        string        `mapstructure:"gamma_url"`
	ClobURL         string        `mapstructure:"clob_url"`
	WsEnabled       bool          `mapstructure:"ws_enabled"`
	WsURL           string        `mapstructure:"ws_url"`
	WsCustomFeature bool          `mapstructure:"ws_custom_feature"`
	WsInitialDump   bool          `mapstructure:"ws_initial_dump"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	MaxMarkets      int           `mapstructure:"max_markets"`
}

// OpinionConfig holds the second peer venue's settings.
type OpinionConfig struct {
	OpenAPIURL  string        `mapstructure:"open_api_url"`
	APIKey      string        `mapstructure:"api_key"`
	WsEnabled   bool          `mapstructure:"ws_enabled"`
	WsURL       string        `mapstructure:"ws_url"`
	WsHeartbeat time.Duration `mapstructure:"ws_heartbeat"`
	MaxMarkets  int           `mapstructure:"max_markets"`
}

// MakerConfig configures the per-token market-making controller.
type MakerConfig struct {
	Spread                       float64       `mapstructure:"spread"`
	MinSpread                    float64       `mapstructure:"min_spread"`
	MaxSpread                    float64       `mapstructure:"max_spread"`
	UseValueSignal               bool          `mapstructure:"use_value_signal"`
	ValueSignalWeight            float64       `mapstructure:"value_signal_weight"`
	ValueConfidenceMin           float64       `mapstructure:"value_confidence_min"`
	OrderSize                    float64       `mapstructure:"order_size"`
	MaxSingleOrderValue          float64       `mapstructure:"max_single_order_value"`
	MaxPosition                  float64       `mapstructure:"max_position"`
	MaxDailyLoss                 float64       `mapstructure:"max_daily_loss"`
	InventorySkewFactor          float64       `mapstructure:"inventory_skew_factor"`
	CancelThreshold              float64       `mapstructure:"cancel_threshold"`
	RepriceThreshold             float64       `mapstructure:"reprice_threshold"`
	MinOrderInterval             time.Duration `mapstructure:"min_order_interval"`
	MaxOrdersPerMarket           int           `mapstructure:"max_orders_per_market"`
	AntiFillBps                  float64       `mapstructure:"anti_fill_bps"`
	NearTouchBps                 float64       `mapstructure:"near_touch_bps"`
	CooldownAfterCancel          time.Duration `mapstructure:"cooldown_after_cancel"`
	VolatilityPauseBps           float64       `mapstructure:"volatility_pause_bps"`
	VolatilityLookback           time.Duration `mapstructure:"volatility_lookback"`
	PauseAfterVolatility         time.Duration `mapstructure:"pause_after_volatility"`
	HedgeOnFill                  bool          `mapstructure:"hedge_on_fill"`
	HedgeTriggerShares           float64       `mapstructure:"hedge_trigger_shares"`
	HedgeMode                    string        `mapstructure:"hedge_mode"` // NONE|FLATTEN|CROSS
	HedgeMaxSlippageBps          float64       `mapstructure:"hedge_max_slippage_bps"`
	OrderRefresh                 time.Duration `mapstructure:"order_refresh"`
	TopNLevels                   int           `mapstructure:"top_n_levels"`
	MinTopDepthShares            float64       `mapstructure:"min_top_depth_shares"`
	MinTopDepthUSD               float64       `mapstructure:"min_top_depth_usd"`
	OrderDepthUsage              float64       `mapstructure:"order_depth_usage"`
	LiquidityActivationMinShares float64       `mapstructure:"liquidity_activation_min_shares"`

	// mm* adaptive tuning family
	VolEmaAlpha           float64       `mapstructure:"vol_ema_alpha"`
	DepthEmaAlpha         float64       `mapstructure:"depth_ema_alpha"`
	DepthRef              float64       `mapstructure:"depth_ref"`
	ImbalanceWeight       float64       `mapstructure:"imbalance_weight"`
	ImbalanceMaxSkew      float64       `mapstructure:"imbalance_max_skew"`
	CalmBandBps           float64       `mapstructure:"calm_band_bps"`
	VolatileBandBps       float64       `mapstructure:"volatile_band_bps"`
	IcebergEnabled        bool          `mapstructure:"iceberg_enabled"`
	IcebergRatio          float64       `mapstructure:"iceberg_ratio"`
	IcebergMaxChunkShares float64       `mapstructure:"iceberg_max_chunk_shares"`
	IcebergRequote        time.Duration `mapstructure:"iceberg_requote"`
	FillRiskSpreadBumpBps float64       `mapstructure:"fill_risk_spread_bump_bps"`
	AdaptiveParams        bool          `mapstructure:"adaptive_params"`
}

// ArbConfig configures the arbitrage scanner/executor and the
// multi-outcome / cross-venue knobs that feed detectors.
type ArbConfig struct {
	ScanInterval         time.Duration `mapstructure:"scan_interval"`
	MaxMarkets           int           `mapstructure:"max_markets"`
	OrderbookConcurrency int           `mapstructure:"orderbook_concurrency"`
	MarketsCacheTTL      time.Duration `mapstructure:"markets_cache_ttl"`
	WsMaxAge             time.Duration `mapstructure:"ws_max_age"`
	MaxErrors            int           `mapstructure:"max_errors"`
	ErrorWindow          time.Duration `mapstructure:"error_window"`
	PauseOnError         time.Duration `mapstructure:"pause_on_error"`
	ExecuteTopN          int           `mapstructure:"execute_top_n"`
	ExecutionCooldown    time.Duration `mapstructure:"execution_cooldown"`
	StabilityMinCount    int           `mapstructure:"stability_min_count"`
	StabilityWindow      time.Duration `mapstructure:"stability_window"`
	RequireWs            bool          `mapstructure:"require_ws"`
	RequireWsHealth      bool          `mapstructure:"require_ws_health"`
	WsRealtime           bool          `mapstructure:"ws_realtime"`
	WsRealtimeInterval   time.Duration `mapstructure:"ws_realtime_interval"`
	WsRealtimeMaxBatch   int           `mapstructure:"ws_realtime_max_batch"`
	AutoExecute          bool          `mapstructure:"auto_execute"`
	AutoExecuteValue     bool          `mapstructure:"auto_execute_value"`
	RequireConfirmation  bool          `mapstructure:"require_confirmation"`
	MaxPositionSizeUSD   float64       `mapstructure:"max_position_size_usd"`

	EdgeThreshold        float64 `mapstructure:"edge_threshold"`
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold"`
	MinNotionalUSD       float64 `mapstructure:"min_notional_usd"`
	MinProfitUSD         float64 `mapstructure:"min_profit_usd"`
	MinDepthUSD          float64 `mapstructure:"min_depth_usd"`
	MaxVwapDeviationBps  float64 `mapstructure:"max_vwap_deviation_bps"`
	MaxVwapLevels        int     `mapstructure:"max_vwap_levels"`
	RecheckDeviationBps  float64 `mapstructure:"recheck_deviation_bps"`
	DepthUsage           float64 `mapstructure:"depth_usage"`
	MaxRecommendedShares float64 `mapstructure:"max_recommended_shares"`
	AllowShorting        bool    `mapstructure:"allow_shorting"`

	MultiOutcomeEnabled     bool    `mapstructure:"multi_outcome_enabled"`
	MultiOutcomeMinOutcomes int     `mapstructure:"multi_outcome_min_outcomes"`
	MultiOutcomeMaxShares   float64 `mapstructure:"multi_outcome_max_shares"`

	CrossPlatformEnabled        bool    `mapstructure:"cross_platform_enabled"`
	CrossPlatformMinProfit      float64 `mapstructure:"cross_platform_min_profit"`
	CrossPlatformMinSimilarity  float64 `mapstructure:"cross_platform_min_similarity"`
	CrossPlatformTransferCost   float64 `mapstructure:"cross_platform_transfer_cost"`
	CrossPlatformSlippageBps    float64 `mapstructure:"cross_platform_slippage_bps"`
	CrossPlatformMaxShares      float64 `mapstructure:"cross_platform_max_shares"`
	CrossPlatformDepthLevels    int     `mapstructure:"cross_platform_depth_levels"`
	CrossPlatformDepthUsage     float64 `mapstructure:"cross_platform_depth_usage"`
	CrossPlatformUseMapping     bool    `mapstructure:"cross_platform_use_mapping"`
	CrossPlatformAutoExecute    bool    `mapstructure:"cross_platform_auto_execute"`
	CrossPlatformRequireConfirm bool    `mapstructure:"cross_platform_require_confirm"`

	MappingFilePath string `mapstructure:"mapping_file_path"`

	MetricsFlushInterval     time.Duration `mapstructure:"metrics_flush_interval"`
	MakerMetricsPath         string        `mapstructure:"maker_metrics_path"`
	CrossPlatformMetricsPath string        `mapstructure:"cross_platform_metrics_path"`
	CrossPlatformStatePath   string        `mapstructure:"cross_platform_state_path"`
}

// DependencyConfig configures the optional constraint-solver plug-in.
type DependencyConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ConstraintsPath string        `mapstructure:"constraints_path"`
	SolverPath      string        `mapstructure:"solver_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxIterations   int           `mapstructure:"max_iterations"`
	MinEdge         float64       `mapstructure:"min_edge"`
	MaxLegs         int           `mapstructure:"max_legs"`
	MaxNotionalUSD  float64       `mapstructure:"max_notional_usd"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	TraceProvider  string `mapstructure:"trace_provider"` // not read: both binaries install the Zipkin exporter
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PREDIKT")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "PREDIKT_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "PREDIKT_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "PREDIKT_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.enable_trading", "PREDIKT_ENABLE_TRADING")
	v.BindEnv("app.auto_confirm_all", "PREDIKT_AUTO_CONFIRM_ALL")
	v.BindEnv("app.alert_webhook_url", "PREDIKT_ALERT_WEBHOOK_URL")
	v.BindEnv("app.dashboard", "PREDIKT_DASHBOARD")

	v.BindEnv("predict.api_base_url", "PREDIKT_PREDICT_API_BASE_URL")
	v.BindEnv("predict.api_key", "PREDIKT_PREDICT_API_KEY")
	v.BindEnv("predict.jwt_token", "PREDIKT_PREDICT_JWT_TOKEN")
	v.BindEnv("predict.private_key", "PREDIKT_PREDICT_PRIVATE_KEY")
	v.BindEnv("predict.account_address", "PREDIKT_PREDICT_ACCOUNT_ADDRESS")
	v.BindEnv("predict.ws_url", "PREDIKT_PREDICT_WS_URL")

	v.BindEnv("polymarket.gamma_url", "PREDIKT_POLYMARKET_GAMMA_URL")
	v.BindEnv("polymarket.clob_url", "PREDIKT_POLYMARKET_CLOB_URL")
	v.BindEnv("polymarket.ws_url", "PREDIKT_POLYMARKET_WS_URL")

	v.BindEnv("opinion.open_api_url", "PREDIKT_OPINION_OPEN_API_URL")
	v.BindEnv("opinion.api_key", "PREDIKT_OPINION_API_KEY")
	v.BindEnv("opinion.ws_url", "PREDIKT_OPINION_WS_URL")

	v.BindEnv("arb.auto_execute", "PREDIKT_ARB_AUTO_EXECUTE")
	v.BindEnv("arb.scan_interval", "PREDIKT_ARB_SCAN_INTERVAL")

	v.BindEnv("dependency.enabled", "PREDIKT_DEPENDENCY_ENABLED")
	v.BindEnv("dependency.solver_path", "PREDIKT_DEPENDENCY_SOLVER_PATH")

	v.BindEnv("telemetry.enabled", "PREDIKT_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "PREDIKT_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "PREDIKT_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "predikt-agent")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.enable_trading", false)
	v.SetDefault("app.auto_confirm_all", false)
	v.SetDefault("app.default_timeout", "10s")
	v.SetDefault("app.health_port", 8081)
	v.SetDefault("app.alert_min_interval", "60s")
	v.SetDefault("app.dashboard", false)

	v.SetDefault("predict.ws_enabled", true)
	v.SetDefault("predict.ws_topic_key", "tokenId")
	v.SetDefault("predict.ws_stale", "0s")
	v.SetDefault("predict.ws_reset_on_reconnect", true)

	v.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.clob_url", "https://clob.polymarket.com")
	v.SetDefault("polymarket.ws_enabled", true)
	v.SetDefault("polymarket.cache_ttl", "30s")
	v.SetDefault("polymarket.max_markets", 500)

	v.SetDefault("opinion.ws_enabled", true)
	v.SetDefault("opinion.ws_heartbeat", "15s")
	v.SetDefault("opinion.max_markets", 500)

	v.SetDefault("maker.spread", 0.02)
	v.SetDefault("maker.min_spread", 0.01)
	v.SetDefault("maker.max_spread", 0.08)
	v.SetDefault("maker.value_signal_weight", 0.3)
	v.SetDefault("maker.value_confidence_min", 0.5)
	v.SetDefault("maker.order_size", 50)
	v.SetDefault("maker.max_single_order_value", 200)
	v.SetDefault("maker.max_position", 2000)
	v.SetDefault("maker.max_daily_loss", 500)
	v.SetDefault("maker.inventory_skew_factor", 0.2)
	v.SetDefault("maker.cancel_threshold", 0.05)
	v.SetDefault("maker.reprice_threshold", 0.02)
	v.SetDefault("maker.min_order_interval", "500ms")
	v.SetDefault("maker.max_orders_per_market", 2)
	v.SetDefault("maker.anti_fill_bps", 15)
	v.SetDefault("maker.near_touch_bps", 5)
	v.SetDefault("maker.cooldown_after_cancel", "1s")
	v.SetDefault("maker.volatility_pause_bps", 300)
	v.SetDefault("maker.volatility_lookback", "30s")
	v.SetDefault("maker.pause_after_volatility", "10s")
	v.SetDefault("maker.hedge_trigger_shares", 50)
	v.SetDefault("maker.hedge_mode", "FLATTEN")
	v.SetDefault("maker.hedge_max_slippage_bps", 50)
	v.SetDefault("maker.order_refresh", "20s")
	v.SetDefault("maker.top_n_levels", 5)
	v.SetDefault("maker.min_top_depth_shares", 20)
	v.SetDefault("maker.min_top_depth_usd", 10)
	v.SetDefault("maker.order_depth_usage", 0.2)
	v.SetDefault("maker.liquidity_activation_min_shares", 0)
	v.SetDefault("maker.vol_ema_alpha", 0.2)
	v.SetDefault("maker.depth_ema_alpha", 0.2)
	v.SetDefault("maker.depth_ref", 500)
	v.SetDefault("maker.imbalance_weight", 0.25)
	v.SetDefault("maker.imbalance_max_skew", 0.3)
	v.SetDefault("maker.calm_band_bps", 50)
	v.SetDefault("maker.volatile_band_bps", 250)
	v.SetDefault("maker.iceberg_ratio", 0.2)
	v.SetDefault("maker.iceberg_max_chunk_shares", 100)
	v.SetDefault("maker.iceberg_requote", "5s")
	v.SetDefault("maker.fill_risk_spread_bump_bps", 20)
	v.SetDefault("maker.adaptive_params", true)

	v.SetDefault("arb.scan_interval", "5s")
	v.SetDefault("arb.max_markets", 200)
	v.SetDefault("arb.orderbook_concurrency", 8)
	v.SetDefault("arb.markets_cache_ttl", "60s")
	v.SetDefault("arb.ws_max_age", "5s")
	v.SetDefault("arb.max_errors", 5)
	v.SetDefault("arb.error_window", "60s")
	v.SetDefault("arb.pause_on_error", "30s")
	v.SetDefault("arb.execute_top_n", 3)
	v.SetDefault("arb.execution_cooldown", "60s")
	v.SetDefault("arb.stability_min_count", 2)
	v.SetDefault("arb.stability_window", "10s")
	v.SetDefault("arb.require_ws", false)
	v.SetDefault("arb.require_ws_health", true)
	v.SetDefault("arb.ws_realtime", true)
	v.SetDefault("arb.ws_realtime_interval", "1s")
	v.SetDefault("arb.ws_realtime_max_batch", 50)
	v.SetDefault("arb.auto_execute", false)
	v.SetDefault("arb.auto_execute_value", false)
	v.SetDefault("arb.require_confirmation", true)
	v.SetDefault("arb.max_position_size_usd", 250)
	v.SetDefault("arb.edge_threshold", 0.02)
	v.SetDefault("arb.confidence_threshold", 0.5)
	v.SetDefault("arb.min_notional_usd", 10)
	v.SetDefault("arb.min_profit_usd", 1)
	v.SetDefault("arb.min_depth_usd", 20)
	v.SetDefault("arb.max_vwap_deviation_bps", 100)
	v.SetDefault("arb.max_vwap_levels", 5)
	v.SetDefault("arb.recheck_deviation_bps", 150)
	v.SetDefault("arb.depth_usage", 0.5)
	v.SetDefault("arb.max_recommended_shares", 500)
	v.SetDefault("arb.allow_shorting", false)
	v.SetDefault("arb.multi_outcome_min_outcomes", 3)
	v.SetDefault("arb.multi_outcome_max_shares", 500)
	v.SetDefault("arb.cross_platform_min_profit", 0.03)
	v.SetDefault("arb.cross_platform_min_similarity", 0.8)
	v.SetDefault("arb.cross_platform_transfer_cost", 0.01)
	v.SetDefault("arb.cross_platform_slippage_bps", 25)
	v.SetDefault("arb.cross_platform_max_shares", 500)
	v.SetDefault("arb.cross_platform_depth_levels", 5)
	v.SetDefault("arb.cross_platform_depth_usage", 0.5)
	v.SetDefault("arb.cross_platform_use_mapping", true)
	v.SetDefault("arb.mapping_file_path", "cross-platform-mapping.json")
	v.SetDefault("arb.metrics_flush_interval", "30s")
	v.SetDefault("arb.maker_metrics_path", "mm-metrics.json")
	v.SetDefault("arb.cross_platform_metrics_path", "cross-platform-metrics.json")
	v.SetDefault("arb.cross_platform_state_path", "cross-platform-state.json")

	v.SetDefault("dependency.timeout", "5s")
	v.SetDefault("dependency.max_iterations", 100)
	v.SetDefault("dependency.constraints_path", "dependency-constraints.json")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "predikt-agent")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.trace_provider", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Predict.APIBaseURL == "" {
		return fmt.Errorf("predict.api_base_url is required")
	}
	if c.App.EnableTrading && c.Predict.PrivateKey == "" {
		return fmt.Errorf("predict.private_key is required when app.enable_trading is true")
	}
	if c.Maker.MinSpread > c.Maker.MaxSpread {
		return fmt.Errorf("maker.min_spread must be <= maker.max_spread")
	}
	if c.Arb.OrderbookConcurrency <= 0 {
		return fmt.Errorf("arb.orderbook_concurrency must be positive")
	}
	switch c.Maker.HedgeMode {
	case "NONE", "FLATTEN", "CROSS":
	default:
		return fmt.Errorf("maker.hedge_mode must be one of NONE|FLATTEN|CROSS, got %q", c.Maker.HedgeMode)
	}
	return nil
}
