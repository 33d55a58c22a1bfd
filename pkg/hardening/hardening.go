// Package hardening refuses to start the gateway in a production-like
// environment with a configuration that weakens its security posture.
package hardening

import (
	"fmt"
	"strings"
)

// Options carries the configuration slices the startup check inspects.
type Options struct {
	Service            string
	Environment        string
	StrictProdSecurity string
	AuthSecret         string
	RedisAddr          string
	RedisRequireTLS    string
	RedisTLSInsecure   string
	CORSAllowedOrigins string
}

// ValidateProduction rejects configurations that are acceptable in
// development but not in production: missing auth secret, wildcard or
// plaintext CORS origins, and non-TLS redis. Non-production
// environments pass unconditionally, as does an explicit
// STRICT_PROD_SECURITY=false override.
func ValidateProduction(o Options) error {
	if !productionLike(o.Environment) {
		return nil
	}
	if !boolValue(o.StrictProdSecurity, true) {
		return nil
	}
	service := strings.TrimSpace(o.Service)
	if service == "" {
		service = "gateway"
	}
	if strings.TrimSpace(o.AuthSecret) == "" {
		return fmt.Errorf("%s: production requires AUTH_SECRET", service)
	}
	if strings.TrimSpace(o.RedisAddr) != "" {
		if !boolValue(o.RedisRequireTLS, false) {
			return fmt.Errorf("%s: production requires REDIS_REQUIRE_TLS=true", service)
		}
		if boolValue(o.RedisTLSInsecure, false) {
			return fmt.Errorf("%s: production forbids REDIS_TLS_INSECURE", service)
		}
	}
	return validateCORSOrigins(o.CORSAllowedOrigins, service)
}

func validateCORSOrigins(raw, service string) error {
	valid := 0
	for _, origin := range strings.Split(raw, ",") {
		o := strings.ToLower(strings.TrimSpace(origin))
		if o == "" {
			continue
		}
		valid++
		if o == "*" {
			return fmt.Errorf("%s: production forbids CORS wildcard origin", service)
		}
		for _, local := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
			if strings.HasPrefix(o, local) {
				return fmt.Errorf("%s: production forbids localhost CORS origin %q", service, o)
			}
		}
		if !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("%s: production requires HTTPS CORS origin, got %q", service, o)
		}
	}
	if valid == 0 {
		return fmt.Errorf("%s: production requires explicit CORS_ALLOWED_ORIGINS", service)
	}
	return nil
}

func boolValue(raw string, def bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	return strings.EqualFold(trimmed, "true")
}

func productionLike(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}
