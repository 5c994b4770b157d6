// Package dotenv loads .env files into the process environment.
package dotenv

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DefaultFiles are read by LoadDefault, in precedence order.
var DefaultFiles = []string{".env.local", ".env"}

// LoadFile loads KEY=VALUE pairs from a dotenv-style file into the process
// environment. Existing environment variables are preserved and a missing
// file is not an error.
func LoadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// LoadDefault loads DefaultFiles from the working directory. Earlier files win.
func LoadDefault() error {
	for _, path := range DefaultFiles {
		if err := LoadFile(path); err != nil {
			return err
		}
	}
	return nil
}
