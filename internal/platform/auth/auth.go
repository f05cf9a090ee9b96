package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Mode selects how outbound registry calls authenticate.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeToken Mode = "token"
	ModeOIDC  Mode = "oidc"
)

// Config holds client credentials for a remote tracking server.
type Config struct {
	Mode             Mode     `yaml:"mode" toml:"mode"`
	Token            string   `yaml:"token" toml:"token"`
	OIDCIssuerURL    string   `yaml:"oidc_issuer_url" toml:"oidc_issuer_url"`
	OIDCClientID     string   `yaml:"oidc_client_id" toml:"oidc_client_id"`
	OIDCClientSecret string   `yaml:"oidc_client_secret" toml:"oidc_client_secret"`
	OIDCScopes       []string `yaml:"oidc_scopes" toml:"oidc_scopes"`
}

// ParseMode normalizes a mode string; blank means none.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeNone):
		return ModeNone, nil
	case string(ModeToken):
		return ModeToken, nil
	case string(ModeOIDC):
		return ModeOIDC, nil
	default:
		return "", fmt.Errorf("auth mode must be one of: none, token, oidc (got %q)", raw)
	}
}

func (c Config) Validate() error {
	mode, err := ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	switch mode {
	case ModeToken:
		if strings.TrimSpace(c.Token) == "" {
			return errors.New("registry token is required for token auth")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("oidc issuer url is required")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("oidc client id is required")
		}
		if strings.TrimSpace(c.OIDCClientSecret) == "" {
			return errors.New("oidc client secret is required")
		}
	}
	return nil
}

// HTTPClient returns a client that attaches credentials for cfg to every
// request. For oidc the token endpoint is discovered from the issuer and
// tokens are obtained with the client credentials grant.
func HTTPClient(ctx context.Context, cfg Config, base *http.Client) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base == nil {
		base = http.DefaultClient
	}
	mode, _ := ParseMode(string(cfg.Mode))
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	switch mode {
	case ModeToken:
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(cfg.Token), TokenType: "Bearer"})
		return oauth2.NewClient(ctx, ts), nil
	case ModeOIDC:
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			TokenURL:     provider.Endpoint().TokenURL,
			Scopes:       cfg.OIDCScopes,
		}
		return cc.Client(ctx), nil
	default:
		return base, nil
	}
}
