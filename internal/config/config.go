package config

import "time"

type Config interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDeepLinkScheme() string
	GetDeepLinkHost() string
	GetRestoreTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
