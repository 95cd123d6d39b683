package config

import "os"

// Secrets are usually injected through the environment (or a .env file
// in development) rather than committed in the YAML.
const (
	envSMTPUsername  = "SMTP_USERNAME"
	envSMTPPassword  = "SMTP_PASSWORD"
	envRedisURL      = "REDIS_URL"
	envS3AccessKeyID = "S3_ACCESS_KEY_ID"
	envS3SecretKey   = "S3_SECRET_ACCESS_KEY"
)

// applyEnvOverrides replaces credential fields with their environment
// counterparts when set. Called after the YAML is unmarshalled so the
// environment always wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envSMTPUsername); v != "" {
		cfg.Alerts.Email.Username = v
	}
	if v := os.Getenv(envSMTPPassword); v != "" {
		cfg.Alerts.Email.Password = v
	}
	if v := os.Getenv(envRedisURL); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv(envS3AccessKeyID); v != "" {
		cfg.Archive.S3.AccessKeyID = v
	}
	if v := os.Getenv(envS3SecretKey); v != "" {
		cfg.Archive.S3.SecretAccessKey = v
	}
}
