package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

const configFileEnvVar = "CONFIG_FILE"

type Config interface {
	EnvConfig
	BackendConfig
	SessionConfig
	StoreConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type BackendConfig interface {
	GetAPIURL() string
	GetHTTPTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// source gives every config concern read access to the same viper instance.
type source struct {
	v *viper.Viper
}

type mainConfig struct {
	EnvVars
	Backend
	Session
	Store
	Cors
}

// New loads configuration from the environment and, when CONFIG_FILE is set, from that file.
// Environment variables always win over file values.
func New() (Config, error) {
	v := viper.New()
	if file := os.Getenv(configFileEnvVar); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("[config.New] read %s: %w", file, err)
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config on top of an existing viper instance, applying defaults.
func FromViper(v *viper.Viper) Config {
	v.AutomaticEnv()
	setDefaults(v)
	s := source{v: v}
	return mainConfig{
		EnvVars: EnvVars{s},
		Backend: Backend{s},
		Session: Session{s},
		Store:   Store{s},
		Cors:    Cors{s},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "Habits Session")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")

	v.SetDefault(apiURLVar, "http://127.0.0.1:8888/api")
	v.SetDefault(httpTimeoutVar, 30*time.Second)

	v.SetDefault(authCallTimeoutVar, 30*time.Second)
	v.SetDefault(refreshIntervalVar, 10*time.Minute)
	v.SetDefault(sessionKeyVar, "auth-storage")

	v.SetDefault(storeTypeVar, string(StoreTypeFile))
	v.SetDefault(dataFolderVar, "./data")
	v.SetDefault(redisAddrVar, "localhost:6379")
	v.SetDefault(redisDBVar, 0)
	v.SetDefault(redisPrefixVar, "habits")
	v.SetDefault(storeRetentionVar, time.Duration(0))

	v.SetDefault(allowedOriginsVar, "http://localhost:3039")
}
