// Package config reads process configuration from the environment.
package config

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/regmarket/namereg/internal/core/domain"
)

type accountList []domain.Account

type Config struct {
	HTTP struct {
		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	}
	Database struct {
		// Empty URL selects the in-memory repository.
		URL string `env:"DATABASE_URL"`
	}
	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}
	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
		Topic   string   `env:"KAFKA_TOPIC" envDefault:"namereg.events"`
	}
	Registrar struct {
		Admins     accountList `env:"ADMIN_ACCOUNTS"`
		InitialFee uint64      `env:"DEFAULT_INITIAL_FEE" envDefault:"1000"`
		RenewFee   uint64      `env:"DEFAULT_RENEW_FEE" envDefault:"100"`
	}
	Cache struct {
		TTL time.Duration `env:"CACHE_TTL" envDefault:"60s"`
	}
	RateLimit struct {
		Rate  float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
		Burst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`
	}
	Anycast struct {
		Enabled  bool   `env:"ANYCAST_ENABLED" envDefault:"false"`
		VIP      string `env:"ANYCAST_VIP"`
		Iface    string `env:"ANYCAST_IFACE" envDefault:"lo"`
		LocalASN uint32 `env:"ANYCAST_LOCAL_ASN" envDefault:"65001"`
		PeerASN  uint32 `env:"ANYCAST_PEER_ASN" envDefault:"65001"`
		PeerIP   string `env:"ANYCAST_PEER_IP"`
		RouterID string `env:"ANYCAST_ROUTER_ID"`
		NextHop  string `env:"ANYCAST_NEXT_HOP"`
	}
	App struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	}
}

func Load() (Config, error) {
	var c Config
	err := env.ParseWithFuncs(&c, map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(accountList{}): func(v string) (interface{}, error) {
			var accounts accountList
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					accounts = append(accounts, domain.Account(s))
				}
			}
			return accounts, nil
		},
	})
	return c, err
}

// SlogLevel maps the configured level onto slog's scale, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.App.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
