package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"SERVER"`
	Database  DatabaseConfig  `mapstructure:"DATABASE"`
	Ethereum  EthereumConfig  `mapstructure:"ETHEREUM"`
	Staking   StakingConfig   `mapstructure:"STAKING"`
	Auth      AuthConfig      `mapstructure:"AUTH"`
	Roles     RolesConfig     `mapstructure:"ROLES"`
	AWS       AWSConfig       `mapstructure:"AWS"`
	Scheduler SchedulerConfig `mapstructure:"SCHEDULER"`
}

type ServerConfig struct {
	Host     string `mapstructure:"HOST"`
	Port     string `mapstructure:"PORT"`
	Endpoint string `mapstructure:"ENDPOINT"`
}

type DatabaseConfig struct {
	Username     string `mapstructure:"USERNAME"`
	Password     string `mapstructure:"PASSWORD"`
	Host         string `mapstructure:"HOST"`
	Port         string `mapstructure:"PORT"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
}

type AWSConfig struct {
	Region          string `mapstructure:"REGION"`
	BucketName      string `mapstructure:"BUCKET_NAME"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`
}

type EthereumConfig struct {
	RPC          string `mapstructure:"RPC"`
	ChainID      int64  `mapstructure:"CHAIN_ID"`
	TokenAddress string `mapstructure:"TOKEN_ADDRESS"`
	// VaultKey signs vault, treasury and reward pool transfers. When empty
	// the key is read from the local keystore.
	VaultKey          string `mapstructure:"VAULT_KEY"`
	TreasuryAddress   string `mapstructure:"TREASURY_ADDRESS"`
	RewardPoolAddress string `mapstructure:"REWARD_POOL_ADDRESS"`
	OracleAddress     string `mapstructure:"ORACLE_ADDRESS"`
	OracleMaxAge      string `mapstructure:"ORACLE_MAX_AGE"`
}

type StakingConfig struct {
	// TokenMode is "ethereum" or "memory".
	TokenMode     string `mapstructure:"TOKEN_MODE"`
	Asset         string `mapstructure:"ASSET"`
	StaticPrice   string `mapstructure:"STATIC_PRICE"`
	UnstakeDelay  string `mapstructure:"UNSTAKE_DELAY"`
	MaxSlashCount int    `mapstructure:"MAX_SLASH_COUNT"`
	// Genesis seeds the memory token: "0xaddr=amount,0xaddr=amount".
	Genesis      string `mapstructure:"GENESIS"`
	VaultAddress string `mapstructure:"VAULT_ADDRESS"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWT_SECRET"`
	TokenTTL  string `mapstructure:"TOKEN_TTL"`
}

// RolesConfig lists comma separated addresses per role; "*" grants the role
// to everyone.
type RolesConfig struct {
	Workers     string `mapstructure:"WORKERS"`
	Slashers    string `mapstructure:"SLASHERS"`
	JobManagers string `mapstructure:"JOB_MANAGERS"`
}

type SchedulerConfig struct {
	DecayInterval string `mapstructure:"DECAY_INTERVAL"`
}

const (
	TokenModeEthereum = "ethereum"
	TokenModeMemory   = "memory"
)

type ConfigManager struct {
	config     *Config
	configPath string
	mutex      sync.RWMutex
}

var (
	instance *ConfigManager
	once     sync.Once
)

func (dc *DatabaseConfig) GetConnectionURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dc.Username,
		dc.Password,
		dc.Host,
		dc.Port,
		dc.DatabaseName,
	)
}

// Enabled reports whether a database was configured. Without one the ledger
// runs from memory only.
func (dc *DatabaseConfig) Enabled() bool {
	return dc.Host != ""
}

func (c *StakingConfig) UnstakeDelayDuration() (time.Duration, error) {
	return parseDuration("STAKING_UNSTAKE_DELAY", c.UnstakeDelay, 7*24*time.Hour)
}

func (c *EthereumConfig) OracleMaxAgeDuration() (time.Duration, error) {
	return parseDuration("ETHEREUM_ORACLE_MAX_AGE", c.OracleMaxAge, time.Hour)
}

func (c *AuthConfig) TokenTTLDuration() (time.Duration, error) {
	return parseDuration("AUTH_TOKEN_TTL", c.TokenTTL, 24*time.Hour)
}

func (c *SchedulerConfig) DecayIntervalDuration() (time.Duration, error) {
	return parseDuration("SCHEDULER_DECAY_INTERVAL", c.DecayInterval, time.Hour)
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func GetConfigManager() *ConfigManager {
	once.Do(func() {
		instance = &ConfigManager{
			configPath: ".env",
		}
	})
	return instance
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.configPath = path
	cm.config = nil
}

func (cm *ConfigManager) GetConfig() (*Config, error) {
	cm.mutex.RLock()
	if cm.config != nil {
		defer cm.mutex.RUnlock()
		return cm.config, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	var err error
	cm.config, err = LoadFile(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) ReloadConfig() (*Config, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	var err error
	cm.config, err = LoadFile(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) GetConfigPath() string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.configPath
}

// LoadFile reads a dotenv style file overlaid with the process environment.
// A missing file is not an error so deployments can rely on env alone.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	sections := map[string][]string{
		"SERVER":    {"HOST", "PORT", "ENDPOINT"},
		"DATABASE":  {"USERNAME", "PASSWORD", "HOST", "PORT", "DATABASE_NAME"},
		"AWS":       {"REGION", "BUCKET_NAME", "ACCESS_KEY_ID", "SECRET_ACCESS_KEY"},
		"ETHEREUM":  {"RPC", "CHAIN_ID", "TOKEN_ADDRESS", "VAULT_KEY", "TREASURY_ADDRESS", "REWARD_POOL_ADDRESS", "ORACLE_ADDRESS", "ORACLE_MAX_AGE"},
		"STAKING":   {"TOKEN_MODE", "ASSET", "STATIC_PRICE", "UNSTAKE_DELAY", "MAX_SLASH_COUNT", "GENESIS", "VAULT_ADDRESS"},
		"AUTH":      {"JWT_SECRET", "TOKEN_TTL"},
		"ROLES":     {"WORKERS", "SLASHERS", "JOB_MANAGERS"},
		"SCHEDULER": {"DECAY_INTERVAL"},
	}
	for section, keys := range sections {
		values := make(map[string]interface{}, len(keys))
		for _, key := range keys {
			values[key] = v.GetString(section + "_" + key)
		}
		v.SetDefault(section, values)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Endpoint == "" {
		c.Server.Endpoint = "/api/v1"
	}
	if c.Staking.TokenMode == "" {
		c.Staking.TokenMode = TokenModeMemory
	}
	if c.Staking.Asset == "" {
		c.Staking.Asset = "PRTY"
	}
	if c.Staking.MaxSlashCount == 0 {
		c.Staking.MaxSlashCount = 3
	}
	if c.Roles.Workers == "" {
		c.Roles.Workers = "*"
	}
}

func (c *Config) Validate() error {
	db := c.Database
	if db.Enabled() && (db.Username == "" || db.Password == "" || db.Port == "" || db.DatabaseName == "") {
		return fmt.Errorf("missing required database configuration")
	}

	switch c.Staking.TokenMode {
	case TokenModeMemory:
	case TokenModeEthereum:
		if c.Ethereum.RPC == "" || c.Ethereum.TokenAddress == "" {
			return fmt.Errorf("ethereum token mode requires ETHEREUM_RPC and ETHEREUM_TOKEN_ADDRESS")
		}
	default:
		return fmt.Errorf("invalid STAKING_TOKEN_MODE %q", c.Staking.TokenMode)
	}

	if c.Ethereum.OracleAddress == "" && c.Staking.StaticPrice == "" {
		return fmt.Errorf("either ETHEREUM_ORACLE_ADDRESS or STAKING_STATIC_PRICE must be set")
	}
	for key, addr := range map[string]string{
		"ETHEREUM_TOKEN_ADDRESS":       c.Ethereum.TokenAddress,
		"ETHEREUM_TREASURY_ADDRESS":    c.Ethereum.TreasuryAddress,
		"ETHEREUM_REWARD_POOL_ADDRESS": c.Ethereum.RewardPoolAddress,
		"ETHEREUM_ORACLE_ADDRESS":      c.Ethereum.OracleAddress,
		"STAKING_VAULT_ADDRESS":        c.Staking.VaultAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s %q", key, addr)
		}
	}
	if c.Staking.MaxSlashCount < 1 || c.Staking.MaxSlashCount > 255 {
		return fmt.Errorf("STAKING_MAX_SLASH_COUNT must be between 1 and 255")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	durations := []func() (time.Duration, error){
		c.Staking.UnstakeDelayDuration,
		c.Ethereum.OracleMaxAgeDuration,
		c.Auth.TokenTTLDuration,
		c.Scheduler.DecayIntervalDuration,
	}
	for _, parse := range durations {
		if _, err := parse(); err != nil {
			return err
		}
	}
	return nil
}

// Members splits a role list into addresses. The boolean is true when the
// list grants the role to everyone.
func Members(list string) ([]common.Address, bool, error) {
	var out []common.Address
	for _, raw := range strings.Split(list, ",") {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case entry == "*":
			return nil, true, nil
		case !common.IsHexAddress(entry):
			return nil, false, fmt.Errorf("invalid role member %q", entry)
		}
		out = append(out, common.HexToAddress(entry))
	}
	return out, false, nil
}
