// Package migrations embeds the SQL schema applied by scripts/seed.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Files returns the migration file names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the contents of one migration.
func Read(name string) (string, error) {
	b, err := files.ReadFile(name)
	return string(b), err
}
