package db

import (
	"bytes"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"text/template"

	"weatherdash/internal/config"
)

// LoadQueries renders every named file under dir in fsys as a text/template
// with the configured table names. Unknown template keys are an error.
func LoadQueries(fsys fs.FS, dir string, tables config.Tables, names ...string) (map[string]string, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, tables); err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		out[name] = buf.String()
	}
	return out, nil
}

// Nullable turns an optional field into a driver value.
func Nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func FloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func StringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}
