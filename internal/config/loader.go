package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the YAML file at path, when given, on top of the defaults.
// WALLETAUTH_ prefixed environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetDefault("app.name", "walletauth")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "")

	v.SetDefault("server.http_addr", ":8443")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.request_timeout", "3s")
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.allow_insecure", false)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("auth.domain", "")
	v.SetDefault("auth.uri", "")
	v.SetDefault("auth.statement", "Sign in with your wallet. This request will not trigger a transaction.")
	v.SetDefault("auth.chain_ids", []int64{1})
	v.SetDefault("auth.issuer", "walletauth")
	v.SetDefault("auth.signing_key_file", "")
	v.SetDefault("auth.challenge_ttl", "5m")
	v.SetDefault("auth.challenge_retention", "1h")
	v.SetDefault("auth.access_ttl", "5m")
	v.SetDefault("auth.refresh_ttl", "120h")
	v.SetDefault("auth.refresh_grace", "5s")
	v.SetDefault("auth.max_session_lifetime", "720h")
	v.SetDefault("auth.strict_access_check", false)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.prune_interval", "1m")

	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "walletauth:")
	v.SetDefault("redis.dial_timeout", "5s")

	v.SetDefault("rate_limit.enable", true)
	v.SetDefault("rate_limit.buckets", map[string]any{
		"challenge:address": map[string]any{"limit": 10, "window": "1m"},
		"challenge:ip":      map[string]any{"limit": 30, "window": "1m"},
		"verify:address":    map[string]any{"limit": 10, "window": "1m"},
		"verify:ip":         map[string]any{"limit": 30, "window": "1m"},
	})

	v.SetDefault("events.driver", EventsGoChannel)
	v.SetDefault("events.topic", "walletauth.revocations")
	v.SetDefault("events.consumer_group", "")

	v.SetDefault("eth.rpc_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", ":9100")

	v.SetEnvPrefix("walletauth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	if c.Auth.Domain == "" {
		return ErrConfig("auth.domain is required")
	}
	if c.Auth.ChallengeTTL <= 0 || c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return ErrConfig("auth ttls must be positive")
	}
	if c.Auth.AccessTTL > c.Auth.RefreshTTL {
		return ErrConfig("auth.access_ttl must not exceed auth.refresh_ttl")
	}
	if c.Auth.RefreshGrace < 0 {
		return ErrConfig("auth.refresh_grace must not be negative")
	}

	if c.Store.PruneInterval <= 0 {
		return ErrConfig("store.prune_interval must be positive")
	}

	if !c.Server.AllowInsecure && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return ErrConfig("server.tls.cert_file and server.tls.key_file are required unless server.allow_insecure is set")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if len(c.Redis.Addrs) == 0 {
			return ErrConfig("redis.addrs is required for the redis store")
		}
	default:
		return ErrConfig(fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	// A consumer group splits the topic, so only one instance would hear
	// each revocation
	if c.Events.ConsumerGroup != "" {
		return ErrConfig("events.consumer_group must be empty, every instance has to read every revocation")
	}

	switch c.Events.Driver {
	case EventsGoChannel:
	case EventsRedisStream:
		if c.Store.Driver != StoreRedis {
			return ErrConfig("events.driver redisstream requires store.driver redis")
		}
	default:
		return ErrConfig(fmt.Sprintf("unknown events.driver %q", c.Events.Driver))
	}

	return nil
}
