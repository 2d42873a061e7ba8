package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerline-labs/ledgerline-go/internal/platform/env"
)

type Mode string

const (
	// ModeOIDC verifies bearer tokens against an OIDC issuer.
	ModeOIDC Mode = "oidc"
	// ModeHeaders trusts HMAC-signed identity headers set by the gateway.
	ModeHeaders Mode = "headers"
	// ModeDev injects a fixed identity. Never for production.
	ModeDev Mode = "dev"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	OIDCScopes       []string

	InternalAuthSecret string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeHeaders))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeHeaders):
		mode = ModeHeaders
	case string(ModeDev):
		mode = ModeDev
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, headers, dev (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:               mode,
		RolesClaim:         env.String("AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:         env.String("AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL:      env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:       env.String("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:   env.String("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:    env.String("OIDC_REDIRECT_URL", ""),
		OIDCScopes:         parseCSV(env.String("OIDC_SCOPES", "openid,profile,email")),
		InternalAuthSecret: env.String("LEDGERLINE_INTERNAL_AUTH_SECRET", ""),
		DevSubject:         env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:           env.String("DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevRoles:           parseCSV(env.String("DEV_AUTH_ROLES", "admin")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required when AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_CLIENT_ID is required when AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.RolesClaim) == "" {
			return errors.New("AUTH_ROLES_CLAIM is required when AUTH_MODE=oidc")
		}
	case ModeHeaders:
		if strings.TrimSpace(c.InternalAuthSecret) == "" {
			return errors.New("LEDGERLINE_INTERNAL_AUTH_SECRET is required when AUTH_MODE=headers")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("DEV_AUTH_SUBJECT is required when AUTH_MODE=dev")
		}
		if len(c.DevRoles) == 0 {
			return errors.New("DEV_AUTH_ROLES must be non-empty when AUTH_MODE=dev")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
