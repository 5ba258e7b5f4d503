package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the engine's root configuration, loaded once at startup.
type Config struct {
	Exchange ExchangeConfig `json:"exchange"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Strategy StrategyConfig `json:"strategy"`
	Signals  SignalSettings `json:"signals"`
}

// ExchangeConfig holds exchange API connection settings.
type ExchangeConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	StreamURL string `json:"stream_url"`
	TestNet   bool   `json:"testnet"`
	MockMode  bool   `json:"mock_mode"` // use simulated data when the exchange is unavailable
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// DatabaseConfig holds the trade journal Postgres settings.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the shared assessment cache settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Strategy names accepted in StrategyConfig.ActiveStrategy.
const (
	StrategyDCA      = "DCA"
	StrategyScalping = "SCALPING"
	StrategyAuto     = "AUTO"
)

// StrategyConfig is the per-symbol trading configuration. Updates are merged
// field-by-field against defaults and validated once; a partially-specified
// config never leaves required numeric fields at zero.
type StrategyConfig struct {
	Common         CommonConfig        `json:"common"`
	DCA            DCAConfig           `json:"dca"`
	Scalping       ScalpingConfig      `json:"scalping"`
	AutoSwitching  AutoSwitchingConfig `json:"auto_switching"`
	ActiveStrategy string              `json:"active_strategy"` // DCA, SCALPING, AUTO
}

// CommonConfig holds settings shared by all strategies.
type CommonConfig struct {
	Leverage       int     `json:"leverage"`
	InitialBalance float64 `json:"initial_balance"`
	Reinvestment   float64 `json:"reinvestment"` // fraction of profit added back to balance
}

// DCAConfig holds cost-averaging strategy settings.
type DCAConfig struct {
	MaxDCAOrders        int     `json:"max_dca_orders"`
	DCAPriceStepPct     float64 `json:"dca_price_step_pct"` // adverse move per DCA level
	DCAMultiplier       float64 `json:"dca_multiplier"`     // size multiplier per level
	MaxTradeDurationMin int     `json:"max_trade_duration_min"`
	TrailingStopPct     float64 `json:"trailing_stop_pct"`
}

// ScalpingConfig holds scalping strategy settings.
type ScalpingConfig struct {
	ProfitTargetPct         float64 `json:"profit_target_pct"`
	StopLossPct             float64 `json:"stop_loss_pct"`
	MaxTradeDurationMin     int     `json:"max_trade_duration_min"`
	TrailingStopActivation  float64 `json:"trailing_stop_activation_pct"`
	TrailingStopDistancePct float64 `json:"trailing_stop_distance_pct"`
}

// AutoSwitchingConfig holds regime thresholds for AUTO strategy selection.
type AutoSwitchingConfig struct {
	VolatilityThreshold    float64 `json:"volatility_threshold"`
	VolumeThreshold        float64 `json:"volume_threshold"`
	TrendStrengthThreshold float64 `json:"trend_strength_threshold"`
}

// SignalSettings configures the signal engine's confirmation voting.
type SignalSettings struct {
	UseTrendDetection    bool    `json:"use_trend_detection"`
	MinTrendStrength     float64 `json:"min_trend_strength"`
	AllowCounterTrend    bool    `json:"allow_counter_trend"`
	ConfirmationRequired int     `json:"confirmation_required"`
	Sensitivity          float64 `json:"sensitivity"`
	RSIWeight            float64 `json:"rsi_weight"`
	MACDWeight           float64 `json:"macd_weight"`
	MAWeight             float64 `json:"ma_weight"`
	MomentumWeight       float64 `json:"momentum_weight"`
	RequireVolumeConfirm bool    `json:"require_volume_confirm"`
	VolumeWeight         float64 `json:"volume_weight"`
	BasePositionPct      float64 `json:"base_position_pct"` // fraction of balance per entry
	MinProfitToClosePct  float64 `json:"min_profit_to_close_pct"`
	MinEntryConfidence   float64 `json:"min_entry_confidence"`
}

// DefaultStrategyConfig returns the built-in strategy defaults.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Common: CommonConfig{
			Leverage:       3,
			InitialBalance: 1000,
			Reinvestment:   1.0,
		},
		DCA: DCAConfig{
			MaxDCAOrders:        3,
			DCAPriceStepPct:     1.5,
			DCAMultiplier:       1.5,
			MaxTradeDurationMin: 240,
			TrailingStopPct:     1.0,
		},
		Scalping: ScalpingConfig{
			ProfitTargetPct:         0.8,
			StopLossPct:             0.5,
			MaxTradeDurationMin:     60,
			TrailingStopActivation:  0.4,
			TrailingStopDistancePct: 0.3,
		},
		AutoSwitching: AutoSwitchingConfig{
			VolatilityThreshold:    1.5,
			VolumeThreshold:        2.0,
			TrendStrengthThreshold: 0.6,
		},
		ActiveStrategy: StrategyAuto,
	}
}

// DefaultSignalSettings returns the built-in signal engine defaults.
func DefaultSignalSettings() SignalSettings {
	return SignalSettings{
		UseTrendDetection:    true,
		MinTrendStrength:     0.4,
		AllowCounterTrend:    true,
		ConfirmationRequired: 2,
		Sensitivity:          1.0,
		RSIWeight:            1.0,
		MACDWeight:           1.2,
		MAWeight:             1.0,
		MomentumWeight:       0.8,
		RequireVolumeConfirm: false,
		VolumeWeight:         0.5,
		BasePositionPct:      0.10,
		MinProfitToClosePct:  0.5,
		MinEntryConfidence:   0.6,
	}
}

// Merge fills zero-valued fields of sc from the defaults, field by field.
func (sc StrategyConfig) Merge(defaults StrategyConfig) StrategyConfig {
	out := sc
	if out.Common.Leverage == 0 {
		out.Common.Leverage = defaults.Common.Leverage
	}
	if out.Common.InitialBalance == 0 {
		out.Common.InitialBalance = defaults.Common.InitialBalance
	}
	if out.Common.Reinvestment == 0 {
		out.Common.Reinvestment = defaults.Common.Reinvestment
	}
	if out.DCA.MaxDCAOrders == 0 {
		out.DCA.MaxDCAOrders = defaults.DCA.MaxDCAOrders
	}
	if out.DCA.DCAPriceStepPct == 0 {
		out.DCA.DCAPriceStepPct = defaults.DCA.DCAPriceStepPct
	}
	if out.DCA.DCAMultiplier == 0 {
		out.DCA.DCAMultiplier = defaults.DCA.DCAMultiplier
	}
	if out.DCA.MaxTradeDurationMin == 0 {
		out.DCA.MaxTradeDurationMin = defaults.DCA.MaxTradeDurationMin
	}
	if out.DCA.TrailingStopPct == 0 {
		out.DCA.TrailingStopPct = defaults.DCA.TrailingStopPct
	}
	if out.Scalping.ProfitTargetPct == 0 {
		out.Scalping.ProfitTargetPct = defaults.Scalping.ProfitTargetPct
	}
	if out.Scalping.StopLossPct == 0 {
		out.Scalping.StopLossPct = defaults.Scalping.StopLossPct
	}
	if out.Scalping.MaxTradeDurationMin == 0 {
		out.Scalping.MaxTradeDurationMin = defaults.Scalping.MaxTradeDurationMin
	}
	if out.Scalping.TrailingStopActivation == 0 {
		out.Scalping.TrailingStopActivation = defaults.Scalping.TrailingStopActivation
	}
	if out.Scalping.TrailingStopDistancePct == 0 {
		out.Scalping.TrailingStopDistancePct = defaults.Scalping.TrailingStopDistancePct
	}
	if out.AutoSwitching.VolatilityThreshold == 0 {
		out.AutoSwitching.VolatilityThreshold = defaults.AutoSwitching.VolatilityThreshold
	}
	if out.AutoSwitching.VolumeThreshold == 0 {
		out.AutoSwitching.VolumeThreshold = defaults.AutoSwitching.VolumeThreshold
	}
	if out.AutoSwitching.TrendStrengthThreshold == 0 {
		out.AutoSwitching.TrendStrengthThreshold = defaults.AutoSwitching.TrendStrengthThreshold
	}
	if out.ActiveStrategy == "" {
		out.ActiveStrategy = defaults.ActiveStrategy
	}
	return out
}

// Validate checks a merged strategy config for values that would corrupt
// sizing or lifecycle decisions.
func (sc StrategyConfig) Validate() error {
	switch sc.ActiveStrategy {
	case StrategyDCA, StrategyScalping, StrategyAuto:
	default:
		return fmt.Errorf("config: unknown strategy %q", sc.ActiveStrategy)
	}
	if sc.Common.Leverage < 1 {
		return fmt.Errorf("config: leverage must be >= 1, got %d", sc.Common.Leverage)
	}
	if sc.Common.InitialBalance <= 0 {
		return fmt.Errorf("config: initial balance must be positive")
	}
	if sc.DCA.DCAMultiplier < 1 {
		return fmt.Errorf("config: dca multiplier must be >= 1, got %v", sc.DCA.DCAMultiplier)
	}
	if sc.DCA.DCAPriceStepPct <= 0 {
		return fmt.Errorf("config: dca price step must be positive")
	}
	return nil
}

// Merge fills zero-valued fields of ss from the defaults.
func (ss SignalSettings) Merge(defaults SignalSettings) SignalSettings {
	out := ss
	if out.MinTrendStrength == 0 {
		out.MinTrendStrength = defaults.MinTrendStrength
	}
	if out.ConfirmationRequired == 0 {
		out.ConfirmationRequired = defaults.ConfirmationRequired
	}
	if out.Sensitivity == 0 {
		out.Sensitivity = defaults.Sensitivity
	}
	if out.RSIWeight == 0 {
		out.RSIWeight = defaults.RSIWeight
	}
	if out.MACDWeight == 0 {
		out.MACDWeight = defaults.MACDWeight
	}
	if out.MAWeight == 0 {
		out.MAWeight = defaults.MAWeight
	}
	if out.MomentumWeight == 0 {
		out.MomentumWeight = defaults.MomentumWeight
	}
	if out.VolumeWeight == 0 {
		out.VolumeWeight = defaults.VolumeWeight
	}
	if out.BasePositionPct == 0 {
		out.BasePositionPct = defaults.BasePositionPct
	}
	if out.MinProfitToClosePct == 0 {
		out.MinProfitToClosePct = defaults.MinProfitToClosePct
	}
	if out.MinEntryConfidence == 0 {
		out.MinEntryConfidence = defaults.MinEntryConfidence
	}
	return out
}

// Load reads configuration from the given JSON file (optional) and applies
// environment overrides for credentials and endpoints.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Exchange: ExchangeConfig{
			BaseURL:   "https://fapi.binance.com",
			StreamURL: "wss://fstream.binance.com",
		},
		Server:   ServerConfig{Enabled: true, Address: ":8080"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"},
		Redis:    RedisConfig{Address: "localhost:6379"},
		Logging:  LoggingConfig{Level: "info"},
		Strategy: DefaultStrategyConfig(),
		Signals:  DefaultSignalSettings(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Strategy = cfg.Strategy.Merge(DefaultStrategyConfig())
	cfg.Signals = cfg.Signals.Merge(DefaultSignalSettings())

	applyEnv(cfg)

	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.SecretKey = getEnv("EXCHANGE_SECRET_KEY", cfg.Exchange.SecretKey)
	cfg.Exchange.BaseURL = getEnv("EXCHANGE_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.StreamURL = getEnv("EXCHANGE_STREAM_URL", cfg.Exchange.StreamURL)
	if v := os.Getenv("EXCHANGE_MOCK_MODE"); v != "" {
		cfg.Exchange.MockMode, _ = strconv.ParseBool(v)
	}

	cfg.Server.Address = getEnv("SERVER_ADDRESS", cfg.Server.Address)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)

	cfg.Redis.Address = getEnv("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
