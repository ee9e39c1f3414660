package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the CLI's connection and output settings. Flags override the
// DOND_* environment variables; a token given neither way is read from TokenFile.
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	Output    string
}

// DefaultConfig reads the DOND_* environment variables
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		ServerURL: envOr("DOND_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("DOND_TOKEN"),
		TokenFile: envOr("DOND_TOKEN_FILE", filepath.Join(home, ".dond", "token")),
		Output:    FormatText,
	}
}

// Validate checks the server URL and output format
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL %q", c.ServerURL)
	}
	if c.Output != FormatText && c.Output != FormatJSON {
		return fmt.Errorf("unknown output format %q", c.Output)
	}
	return nil
}

// LoadToken fills Token from TokenFile when it was not given directly.
// A missing file leaves the CLI unauthenticated.
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken stores token in TokenFile, readable only by the current user
func (c *Config) SaveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(c.TokenFile, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	c.Token = token
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
