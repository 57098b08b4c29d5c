package config

import (
	"time"

	"github.com/layer-3/walletauth/adapters/ratelimit"
	"github.com/layer-3/walletauth/internal/obs"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	EventsGoChannel   = "gochannel"
	EventsRedisStream = "redisstream"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type TLS struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	TLS             TLS           `mapstructure:"tls"`
	// AllowInsecure serves plain HTTP, for use behind a TLS terminating proxy
	AllowInsecure  bool     `mapstructure:"allow_insecure"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type Auth struct {
	Domain             string        `mapstructure:"domain"`
	URI                string        `mapstructure:"uri"`
	Statement          string        `mapstructure:"statement"`
	ChainIDs           []int64       `mapstructure:"chain_ids"`
	Issuer             string        `mapstructure:"issuer"`
	SigningKeyFile     string        `mapstructure:"signing_key_file"`
	ChallengeTTL       time.Duration `mapstructure:"challenge_ttl"`
	ChallengeRetention time.Duration `mapstructure:"challenge_retention"`
	AccessTTL          time.Duration `mapstructure:"access_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`
	RefreshGrace       time.Duration `mapstructure:"refresh_grace"`
	MaxSessionLifetime time.Duration `mapstructure:"max_session_lifetime"`
	StrictAccessCheck  bool          `mapstructure:"strict_access_check"`
}

type Store struct {
	Driver        string        `mapstructure:"driver"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type Redis struct {
	Addrs       []string      `mapstructure:"addrs"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type Bucket struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimit struct {
	Enable  bool              `mapstructure:"enable"`
	Buckets map[string]Bucket `mapstructure:"buckets"`
}

type Events struct {
	Driver        string `mapstructure:"driver"`
	Topic         string `mapstructure:"topic"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type Eth struct {
	RPCURL string `mapstructure:"rpc_url"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Metrics struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	App       App       `mapstructure:"app"`
	Server    Server    `mapstructure:"server"`
	Auth      Auth      `mapstructure:"auth"`
	Store     Store     `mapstructure:"store"`
	Redis     Redis     `mapstructure:"redis"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Events    Events    `mapstructure:"events"`
	Eth       Eth       `mapstructure:"eth"`
	Log       Log       `mapstructure:"log"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

func (c *Config) AsServiceConfig() service.Config {
	uri := c.Auth.URI
	if uri == "" {
		uri = "https://" + c.Auth.Domain
	}
	return service.Config{
		Domain:             c.Auth.Domain,
		URI:                uri,
		Statement:          c.Auth.Statement,
		ChainIDs:           c.Auth.ChainIDs,
		ChallengeTTL:       c.Auth.ChallengeTTL,
		ChallengeRetention: c.Auth.ChallengeRetention,
		AccessTTL:          c.Auth.AccessTTL,
		RefreshTTL:         c.Auth.RefreshTTL,
		RefreshGrace:       c.Auth.RefreshGrace,
		MaxSessionLifetime: c.Auth.MaxSessionLifetime,
		StrictAccessCheck:  c.Auth.StrictAccessCheck,
	}
}

// AsBuckets returns the enabled rate limit budgets
func (c *Config) AsBuckets() ratelimit.Buckets {
	buckets := make(ratelimit.Buckets, len(c.RateLimit.Buckets))
	for name, b := range c.RateLimit.Buckets {
		buckets[name] = ratelimit.Bucket{Limit: b.Limit, Window: b.Window}
	}
	return buckets
}

func (c *Config) AsRouterConfig() transport.RouterConfig {
	var retryAfter time.Duration
	for _, b := range c.RateLimit.Buckets {
		retryAfter = max(retryAfter, b.Window)
	}
	return transport.RouterConfig{
		RequestTimeout: c.Server.RequestTimeout,
		RetryAfter:     retryAfter,
		TrustedProxies: c.Server.TrustedProxies,
	}
}
