package document

import (
	"fmt"
	"regexp"
	"strings"
)

// tableNamePattern restricts table names to safe SQL identifiers since they
// are interpolated directly into DDL/DML (SQLite has no parameter binding
// for identifiers).
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("sqler: invalid identifier %q", name)
	}
	return name, nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, data JSON NOT NULL)`,
		table,
	)
}

func createVersionedTableSQL(table string) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, data JSON NOT NULL, _version INTEGER NOT NULL DEFAULT 0)`,
		table,
	)
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (data) VALUES (json(?))`, table)
}

func updateSQL(table string) string {
	return fmt.Sprintf(`UPDATE %s SET data = json(?) WHERE id = ?`, table)
}

func insertVersionedSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (data, _version) VALUES (json(?), 0)`, table)
}

func updateVersionedSQL(table string) string {
	return fmt.Sprintf(
		`UPDATE %s SET data = json(?), _version = _version + 1 WHERE id = ? AND _version = ?`,
		table,
	)
}

func selectByIDSQL(table string) string {
	return fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, table)
}

func selectByIDWithVersionSQL(table string) string {
	return fmt.Sprintf(`SELECT data, _version FROM %s WHERE id = ?`, table)
}

func deleteSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)
}

func maxIDSQL(table string) string {
	return fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) FROM %s`, table)
}

func hasVersionColumnSQL(table string) string {
	return fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = '_version'`, table)
}

func addVersionColumnSQL(table string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD COLUMN _version INTEGER NOT NULL DEFAULT 0`, table)
}

// indexName computes the default name idx_<table>_<field-with-dots-as-underscores>.
func indexName(table, field string) string {
	safe := strings.NewReplacer(".", "_", "[", "_", "]", "_").Replace(field)
	return fmt.Sprintf("idx_%s_%s", table, safe)
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	Unique bool
	Name   string
	Where  string
}

func createIndexSQL(table, field string, opts IndexOptions) (string, error) {
	name := opts.Name
	if name == "" {
		name = indexName(table, field)
	}
	if _, err := quoteIdent(name); err != nil {
		return "", err
	}

	var expr string
	if strings.HasPrefix(field, "_") {
		col, err := quoteIdent(field)
		if err != nil {
			return "", err
		}
		expr = col
	} else {
		expr = fmt.Sprintf("json_extract(data, '$.%s')", field)
	}

	unique := ""
	if opts.Unique {
		unique = "UNIQUE "
	}
	where := ""
	if opts.Where != "" {
		where = " WHERE " + opts.Where
	}
	return fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)%s",
		unique, name, table, expr, where,
	), nil
}

func dropIndexSQL(name string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS %s`, name)
}
