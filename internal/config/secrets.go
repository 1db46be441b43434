package config

// Redacted returns a copy of the config with secret values masked, suitable
// for logging at startup.
func (c Config) Redacted() Config {
	out := c

	out.Venue.APIToken = redact(c.Venue.APIToken)
	out.Venue.TokenPassword = redact(c.Venue.TokenPassword)
	out.Postgres.DSN = redact(c.Postgres.DSN)
	out.Postgres.Password = redact(c.Postgres.Password)
	out.Redis.Password = redact(c.Redis.Password)
	out.S3.AccessKey = redact(c.S3.AccessKey)
	out.S3.SecretKey = redact(c.S3.SecretKey)
	out.Server.APIKey = redact(c.Server.APIKey)

	// Copy slices so the redacted view cannot alias the live config.
	out.Trading.Symbols = append([]string(nil), c.Trading.Symbols...)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)

	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
