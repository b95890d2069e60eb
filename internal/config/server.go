package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AutoCreateBouts bool `env:"AUTO_CREATE_BOUTS" envDefault:"false"`
	MaxRounds       int  `env:"MAX_ROUNDS" envDefault:"5"`

	WSPingIntervalMS int `env:"WS_PING_INTERVAL_MS" envDefault:"15000"`
	WSPongTimeoutMS  int `env:"WS_PONG_TIMEOUT_MS" envDefault:"45000"`

	JobsBackend   string `env:"JOBS_BACKEND" envDefault:"pool"`
	JobsWorkers   int    `env:"JOBS_WORKERS" envDefault:"4"`
	NotifyWorkers int    `env:"NOTIFY_WORKERS" envDefault:"8"`

	ResultPushEnabled    bool   `env:"RESULT_PUSH_ENABLED" envDefault:"false"`
	ResultPushConfigPath string `env:"RESULT_PUSH_CONFIG_PATH"`
	ResultPushConfigJSON string `env:"RESULT_PUSH_CONFIG_JSON"`
	ResultPushReloadMS   int    `env:"RESULT_PUSH_CONFIG_RELOAD_MS" envDefault:"1000"`
	ResultPushWorkers    int    `env:"RESULT_PUSH_WORKERS" envDefault:"2"`
	ResultPushRetryMax   int    `env:"RESULT_PUSH_RETRY_MAX" envDefault:"3"`
	ResultPushRetryMS    int    `env:"RESULT_PUSH_RETRY_BASE_MS" envDefault:"500"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

func (c ServerConfig) WSPingInterval() time.Duration {
	return time.Duration(c.WSPingIntervalMS) * time.Millisecond
}

func (c ServerConfig) WSPongTimeout() time.Duration {
	return time.Duration(c.WSPongTimeoutMS) * time.Millisecond
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
