package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// The engine runs on Postgres and on SQLite, so new migrations carry a
// reminder to stay portable.
var migrationTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- {{.Name}}
-- Keep statements portable across postgres and sqlite3: TEXT ids, BIGINT
-- minor-unit amounts, CHECK constraints instead of enum types.

-- +goose Down
`))

// CreateSQLMigration writes a new goose migration to
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The version is bumped past the newest
// existing file so two migrations created in the same second never collide.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.Trim(nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	existing, err := listMigrations(dir)
	if err != nil {
		return "", err
	}

	version := nextVersion(time.Now().UTC(), existing)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	if err := migrationTemplate.Execute(f, struct{ Name string }{Name: safe}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("render migration %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func nextVersion(now time.Time, existing []migrationFile) string {
	candidate := now.Format(versionLayout)
	if len(existing) == 0 {
		return candidate
	}
	latest := existing[len(existing)-1].Version
	if candidate > latest {
		return candidate
	}
	// Versions are fixed-width digits, so numeric +1 keeps the ordering.
	n, _ := strconv.ParseInt(latest, 10, 64)
	return strconv.FormatInt(n+1, 10)
}
