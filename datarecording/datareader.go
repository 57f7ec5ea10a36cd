package datarecording

import (
	"database/sql"
	"fmt"
)

// SQLiteReader reads back what a SQLiteWriter recorded.
type SQLiteReader struct {
	*sql.DB

	dbName string
}

// NewSQLiteReader creates a reader. Init must be called before use.
func NewSQLiteReader(path string) *SQLiteReader {
	return &SQLiteReader{dbName: path}
}

// Init opens the database.
func (r *SQLiteReader) Init() error {
	db, err := sql.Open("sqlite3", r.dbName+".sqlite3")
	if err != nil {
		return err
	}

	r.DB = db

	return nil
}

// ListTables returns the tables in the database, sorted by name.
func (r *SQLiteReader) ListTables() ([]string, error) {
	rows, err := r.Query(
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// Count returns the number of rows in a table.
func (r *SQLiteReader) Count(tableName string) (int, error) {
	var n int

	err := r.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&n)
	if err != nil {
		return 0, err
	}

	return n, nil
}
