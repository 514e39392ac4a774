package util

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if one exists.
// Missing file is not an error so deployments can rely on real env vars.
func LoadEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}
