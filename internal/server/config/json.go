package config

import (
	"encoding/json"
	"os"

	"github.com/engarde/templatesync/internal/flagx"
	"github.com/engarde/templatesync/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept "15m" style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	HealthAddrGRPC               string         `json:"health_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	SSOSecretKey                 string         `json:"sso_secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	ArchiveEnabled               bool           `json:"archive_enabled"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays the JSON configuration file onto config.
//
// The file path comes from the -c or -config flag (see flagx.JsonConfigFlags).
// Without either flag nothing is loaded and config keeps its defaults.
//
// Every field of JsonConfig is copied, so a file must list all settings it
// wants to keep; absent keys reset the matching field to its zero value.
// A missing or malformed file panics.
//
// Fields populated:
//   - HTTPAddr, HealthAddrGRPC
//   - DatabaseDSN, SecretKey, SSOSecretKey
//   - AccessTokenValidityDuration, RefreshTokenValidityDuration
//   - S3RootUser, S3RootPassword, S3Bucket, S3Region, S3BaseEndpoint
//   - ArchiveEnabled, LogLevel
//
// Flags parsed later by parseFlags take precedence over these values.
func parseJson(config *Config) {
	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.HTTPAddr = c.HTTPAddr
	config.HealthAddrGRPC = c.HealthAddrGRPC
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SSOSecretKey = c.SSOSecretKey
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.ArchiveEnabled = c.ArchiveEnabled
	config.LogLevel = c.LogLevel
}
