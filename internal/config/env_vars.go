package config

import (
	"os"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	logLevelVar       = "LOG_LEVEL"
	deepLinkSchemeVar = "DEEP_LINK_SCHEME"
	deepLinkHostVar   = "DEEP_LINK_HOST"
	restoreTimeoutVar = "RESTORE_TIMEOUT"
)

type EnvVars struct{}

var _ Config = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "SiteLink Auth")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetDeepLinkScheme returns the custom URL scheme the app is registered for
// (e.g. "sitelink" in sitelink://invitation?token=...)
func (EnvVars) GetDeepLinkScheme() string {
	return GetEnv(deepLinkSchemeVar, "sitelink")
}

func (EnvVars) GetDeepLinkHost() string {
	return GetEnv(deepLinkHostVar, "invitation")
}

func (EnvVars) GetRestoreTimeout() time.Duration {
	raw := GetEnv(restoreTimeoutVar, "15s")
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 15 * time.Second
	}
	return timeout
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
