package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	Output    string
}

// DefaultConfig reads defaults from the environment.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("MATCHCTL_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("MATCHCTL_TOKEN"),
		TokenFile: getEnvOrDefault("MATCHCTL_TOKEN_FILE", defaultTokenFile()),
		Output:    "text",
	}
}

// LoadToken loads the token from file if not already set
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matchctl/token"
	}
	return filepath.Join(home, ".matchctl", "token")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
