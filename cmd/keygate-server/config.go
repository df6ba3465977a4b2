package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/keygate/internal/api/http"
	"github.com/EternisAI/keygate/internal/auth"
	"github.com/EternisAI/keygate/internal/db"
	"github.com/EternisAI/keygate/internal/sessions"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig       `mapstructure:"log"`
	Http     http.Config     `mapstructure:"http"`
	Database db.Config       `mapstructure:"database"`
	Keys     KeysConfig      `mapstructure:"keys"`
	Sessions sessions.Config `mapstructure:"sessions"`
	Auth     auth.Config     `mapstructure:"auth"`
}

type KeysConfig struct {
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	OnlineWindow   time.Duration `mapstructure:"online_window"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/keygate-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets are usually injected through the environment.
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("database.url", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		redacted.Http.AdminAPIKey = redact(redacted.Http.AdminAPIKey)
		redacted.Auth.JWTSecret = redact(redacted.Auth.JWTSecret)
		redacted.Database.Url = redact(redacted.Database.Url)
		redacted.Http.RateLimit.Redis.Password = redact(redacted.Http.RateLimit.Redis.Password)
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
