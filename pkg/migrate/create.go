package migrate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// CreateSQLMigration scaffolds a new timestamped SQL migration file.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return "", fmt.Errorf("goose create: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// ValidateDir checks the directory exists and every migration file parses.
func ValidateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if _, err := goose.CollectMigrations(dir, 0, math.MaxInt64); err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	return nil
}
