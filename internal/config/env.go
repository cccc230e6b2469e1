package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=value pairs from path into the environment. Variables
// already set are left alone, so the real environment wins over .env.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	path = filepath.Clean(path)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}
