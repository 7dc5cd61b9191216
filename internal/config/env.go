package config

import (
	"os"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads .env and .env.local when present. godotenv.Load never
// overrides variables that are already set.
func loadEnvFiles() error {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to load env file").
				Fatal().
				WithContext("path", name).
				Build()
		}
	}
	return nil
}
