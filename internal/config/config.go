// Package config carga la configuración desde YAML con overrides por
// variables de entorno. Los secretos (master secret, DSN con password) van
// SOLO por env; el YAML es para lo que se puede commitear.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// "pg" | "memory"
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// "memory" | "redis"
		Driver string `yaml:"driver"`
		TTL    string `yaml:"ttl"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"-"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Auth struct {
		// MasterSecret solo por env (AUTH_MASTER_SECRET).
		MasterSecret string `yaml:"-"`
		Issuer       string `yaml:"issuer"`
		AccessTTL    string `yaml:"access_ttl"`
	} `yaml:"auth"`

	Bus struct {
		BufferSize     int `yaml:"buffer_size"`
		MaxSubscribers int `yaml:"max_subscribers"`
	} `yaml:"bus"`

	Rate struct {
		// Requests por minuto por IP en endpoints sensibles (keys, attach).
		PerMinute int `yaml:"per_minute"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (path vacío = solo defaults + env), aplica defaults y
// después los overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "30s"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "rolekits-core"
	}
	if c.Auth.AccessTTL == "" {
		c.Auth.AccessTTL = "30m"
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = 16
	}
	if c.Bus.MaxSubscribers == 0 {
		c.Bus.MaxSubscribers = 4096
	}
	if c.Rate.PerMinute == 0 {
		c.Rate.PerMinute = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	c.applyEnvOverrides()
	return &c, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("AUTH_MASTER_SECRET"); ok {
		c.Auth.MasterSecret = v
	}
	if v, ok := getEnvStr("AUTH_ISSUER"); ok {
		c.Auth.Issuer = v
	}
	if v, ok := getEnvStr("AUTH_ACCESS_TTL"); ok {
		c.Auth.AccessTTL = v
	}
	if v, ok := getEnvInt("BUS_BUFFER_SIZE"); ok {
		c.Bus.BufferSize = v
	}
	if v, ok := getEnvInt("BUS_MAX_SUBSCRIBERS"); ok {
		c.Bus.MaxSubscribers = v
	}
	if v, ok := getEnvInt("RATE_PER_MINUTE"); ok {
		c.Rate.PerMinute = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// Validate chequea lo que no puede faltar para levantar el servicio.
func (c *Config) Validate() error {
	if c.Auth.MasterSecret == "" {
		return fmt.Errorf("config: AUTH_MASTER_SECRET is required")
	}
	if len(c.Auth.MasterSecret) < 32 {
		return fmt.Errorf("config: AUTH_MASTER_SECRET must be at least 32 bytes")
	}
	if c.Storage.Driver == "pg" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required for driver pg")
	}
	return nil
}

// AccessTTL parsea el TTL de los access tokens.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.AccessTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// CacheTTL parsea el TTL del cache de validaciones.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ConnMaxLifetime parsea el lifetime máximo de conexiones del pool.
func (c *Config) ConnMaxLifetime() time.Duration {
	d, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime)
	if err != nil {
		return 0
	}
	return d
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvCSV(key string) ([]string, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, len(out) > 0
}
