package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"bridge-aggregator/pkg/chains"
)

// Config holds the application configuration
type Config struct {
	PrivateKey string
	// RPCURLs overrides the default RPC endpoint per chain name
	RPCURLs map[string]string

	OneClickJWT     string
	OneClickBaseURL string
	SynapseBaseURL  string `validate:"omitempty,url"`
	DeBridgeBaseURL string `validate:"omitempty,url"`
	AcrossBaseURL   string `validate:"omitempty,url"`

	ProviderTimeout time.Duration `validate:"gt=0"`
	RefreshInterval time.Duration `validate:"gt=0"`
	BalanceTTL      time.Duration `validate:"gt=0"`
	HTTPProxy       string

	HistoryPath string
	LogLevel    string `validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	MetricsAddr string
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".bridge-aggregator")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("oneclick_base_url", "https://1click.chaindefuser.com")
	viper.SetDefault("provider_timeout", "15s")
	viper.SetDefault("refresh_interval", "10s")
	viper.SetDefault("balance_ttl", "10s")
	viper.SetDefault("log_level", "info")

	// BRIDGE_AGG_RPC_URLS_ARBITRUM maps to rpc_urls.arbitrum
	viper.SetEnvPrefix("BRIDGE_AGG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{
		PrivateKey:      viper.GetString("private_key"),
		RPCURLs:         make(map[string]string),
		OneClickJWT:     viper.GetString("oneclick_jwt"),
		OneClickBaseURL: viper.GetString("oneclick_base_url"),
		SynapseBaseURL:  viper.GetString("synapse_base_url"),
		DeBridgeBaseURL: viper.GetString("debridge_base_url"),
		AcrossBaseURL:   viper.GetString("across_base_url"),
		ProviderTimeout: viper.GetDuration("provider_timeout"),
		RefreshInterval: viper.GetDuration("refresh_interval"),
		BalanceTTL:      viper.GetDuration("balance_ttl"),
		HTTPProxy:       viper.GetString("http_proxy"),
		HistoryPath:     viper.GetString("history_path"),
		LogLevel:        strings.ToLower(viper.GetString("log_level")),
		MetricsAddr:     viper.GetString("metrics_addr"),
	}

	for _, c := range chains.NewRegistry().All() {
		name := strings.ToLower(c.Name)
		if url := viper.GetString("rpc_urls." + name); url != "" {
			cfg.RPCURLs[name] = url
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// HasWallet reports whether a signing key is configured
func (c *Config) HasWallet() bool {
	return c.PrivateKey != ""
}
