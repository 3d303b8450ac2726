// Package secrets is the explicit secret-loading collaborator: the
// rest of the system asks it for named values instead of reading the
// process environment or dotfiles directly.
package secrets

import (
	"os"

	"github.com/joho/godotenv"
)

// Load merges the given dotenv files into the process environment,
// earliest file winning over later ones, without overriding variables
// that are already set. Missing files are not an error.
func Load(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// Get resolves a named secret from the environment. It matches the
// backend.SecretSource contract.
func Get(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
