package config

import "go.uber.org/zap"

// ProductionWarnings returns configuration findings that are acceptable in
// development but risky in production.
func (c *Config) ProductionWarnings() []string {
	var warnings []string

	if c.SCIM.Enabled && c.SCIM.JWKSURL == "" && len(c.SCIM.Token) < 32 {
		warnings = append(warnings, "scim.token is short; use at least 32 random characters or switch to JWT validation")
	}
	if !c.TLS.Enabled {
		warnings = append(warnings, "tls.enabled is false; SCIM bearer tokens will cross the wire in cleartext")
	}
	if !c.EnableRateLimit {
		warnings = append(warnings, "enable_rate_limit is false; the SCIM endpoint is unprotected against floods")
	}
	if c.BaseURL != "" && len(c.BaseURL) >= 7 && c.BaseURL[:7] == "http://" {
		warnings = append(warnings, "base_url uses http; published resource locations will not be https")
	}

	return warnings
}

// LogSecurityWarnings logs actionable security warnings when running in
// production with insecure defaults. Call at service startup after
// configuration is loaded.
func (c *Config) LogSecurityWarnings(log *zap.Logger) {
	if !c.IsProduction() {
		return
	}

	warnings := c.ProductionWarnings()
	for _, w := range warnings {
		log.Warn("SECURITY", zap.String("warning", w))
	}
	if len(warnings) > 0 {
		log.Warn("SECURITY: production deployment has insecure configuration",
			zap.Int("warning_count", len(warnings)))
	}
}
