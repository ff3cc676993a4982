package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	annotationUp         = "-- +goose Up"
	annotationDown       = "-- +goose Down"
	annotationStmtBegin  = "-- +goose StatementBegin"
	annotationStmtEnd    = "-- +goose StatementEnd"
	annotationNoTxPrefix = "-- +goose NO TRANSACTION"
)

// migrationFile is one parsed entry of the migrations directory.
type migrationFile struct {
	Version string
	Name    string
	Path    string
}

// listMigrations returns the .sql files of dir in version order, rejecting
// malformed names and duplicate versions.
func listMigrations(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var files []migrationFile
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, e.Name())
		}
		seen[m[1]] = e.Name()
		files = append(files, migrationFile{Version: m[1], Name: m[2], Path: filepath.Join(dir, e.Name())})
	}
	// os.ReadDir sorts by filename, and the fixed-width version prefix keeps that in version order.
	return files, nil
}

// ValidateDir checks every migration in dir: the filename shape, unique
// versions, an Up section followed by a Down section and balanced
// StatementBegin/End blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.Path, err)
		}
		if err := validateMigration(raw); err != nil {
			return fmt.Errorf("migration %q: %w", filepath.Base(f.Path), err)
		}
	}
	return nil
}

func validateMigration(raw []byte) error {
	var (
		section    string
		openBlock  bool
		sawUp      bool
		sawDown    bool
		lineNumber int
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == annotationUp:
			if sawUp {
				return fmt.Errorf("line %d: repeated %q", lineNumber, annotationUp)
			}
			if sawDown {
				return fmt.Errorf("line %d: %q must precede %q", lineNumber, annotationUp, annotationDown)
			}
			sawUp, section = true, "up"
		case line == annotationDown:
			if !sawUp {
				return fmt.Errorf("line %d: %q must precede %q", lineNumber, annotationUp, annotationDown)
			}
			if sawDown {
				return fmt.Errorf("line %d: repeated %q", lineNumber, annotationDown)
			}
			if openBlock {
				return fmt.Errorf("line %d: %q left open in the up section", lineNumber, annotationStmtBegin)
			}
			sawDown, section = true, "down"
		case line == annotationStmtBegin:
			if openBlock {
				return fmt.Errorf("line %d: nested %q", lineNumber, annotationStmtBegin)
			}
			openBlock = true
		case line == annotationStmtEnd:
			if !openBlock {
				return fmt.Errorf("line %d: %q without %q", lineNumber, annotationStmtEnd, annotationStmtBegin)
			}
			openBlock = false
		case strings.HasPrefix(line, annotationNoTxPrefix), line == "", strings.HasPrefix(line, "--"):
		default:
			if section == "" {
				return fmt.Errorf("line %d: SQL before %q", lineNumber, annotationUp)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case !sawUp:
		return fmt.Errorf("missing %q", annotationUp)
	case !sawDown:
		return fmt.Errorf("missing %q", annotationDown)
	case openBlock:
		return fmt.Errorf("unterminated %q", annotationStmtBegin)
	}
	return nil
}
