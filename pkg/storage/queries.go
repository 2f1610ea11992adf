package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ritzau/migration-graph/pkg/graph"
)

// ErrNotFound is returned when no function has the requested key
var ErrNotFound = errors.New("function not found")

// Function is a stored function row
type Function struct {
	ID            int64  `json:"-"`
	Key           string `json:"key"`
	Owner         string `json:"owner"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualifiedName"`
}

// Stats counts the stored rows
type Stats struct {
	Functions        int `json:"functions"`
	LibraryFunctions int `json:"libraryFunctions"`
	DirectCalls      int `json:"directCalls"`
	TransitiveCalls  int `json:"transitiveCalls"`
}

// SaveGraph replaces the stored graph with g in one transaction
func (db *DB) SaveGraph(g *graph.CallGraph) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM calls; DELETE FROM functions;"); err != nil {
		return fmt.Errorf("clearing previous graph: %w", err)
	}

	insertFn, err := tx.Prepare(
		`INSERT INTO functions (key, owner, file, line, name, qualified_name)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertFn.Close()

	ids := make(map[string]int64, g.Len())
	for _, fn := range g.Functions() {
		result, err := insertFn.Exec(fn.Key(), fn.Owner.String(), fn.File, fn.Line, fn.Name, fn.QualifiedName)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", fn.Key(), err)
		}
		if ids[fn.Key()], err = result.LastInsertId(); err != nil {
			return err
		}
	}

	insertCall, err := tx.Prepare(
		`INSERT INTO calls (caller_id, callee_id, kind, line) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertCall.Close()

	for _, call := range g.AllCalls() {
		kind := graph.CallKindTransitive
		var line sql.NullInt64
		if call.Direct() {
			kind = graph.CallKindDirect
			line = sql.NullInt64{Int64: int64(call.Line), Valid: true}
		}
		if _, err := insertCall.Exec(ids[call.Caller.Key()], ids[call.Callee.Key()], string(kind), line); err != nil {
			return fmt.Errorf("inserting call %s: %w", call.Key(), err)
		}
	}

	return tx.Commit()
}

// FunctionByKey returns the function with the given identity key
func (db *DB) FunctionByKey(key string) (*Function, error) {
	row := db.conn.QueryRow(
		`SELECT id, key, owner, file, line, name, qualified_name FROM functions WHERE key = ?`,
		key,
	)
	fn, err := scanFunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fn, err
}

// Callees returns the distinct functions called by key through calls of kind
func (db *DB) Callees(key string, kind graph.CallKind) ([]*Function, error) {
	return db.related(key, kind, "caller_id", "callee_id")
}

// Callers returns the distinct functions calling key through calls of kind
func (db *DB) Callers(key string, kind graph.CallKind) ([]*Function, error) {
	return db.related(key, kind, "callee_id", "caller_id")
}

func (db *DB) related(key string, kind graph.CallKind, from, to string) ([]*Function, error) {
	fn, err := db.FunctionByKey(key)
	if err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT f.id, f.key, f.owner, f.file, f.line, f.name, f.qualified_name
		 FROM functions f
		 JOIN calls c ON c.` + to + ` = f.id
		 WHERE c.` + from + ` = ?`
	args := []interface{}{fn.ID}
	if kind != graph.CallKindAll {
		query += ` AND c.kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY f.key`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFunctions(rows)
}

// Neighborhood is a stored function with its callers and callees
type Neighborhood struct {
	Function *Function   `json:"function"`
	Kind     string      `json:"kind"`
	Callers  []*Function `json:"callers"`
	Callees  []*Function `json:"callees"`
}

// Neighborhood loads key and the functions related to it through calls of kind
func (db *DB) Neighborhood(key string, kind graph.CallKind) (*Neighborhood, error) {
	fn, err := db.FunctionByKey(key)
	if err != nil {
		return nil, err
	}
	callers, err := db.Callers(key, kind)
	if err != nil {
		return nil, fmt.Errorf("loading callers of %s: %w", key, err)
	}
	callees, err := db.Callees(key, kind)
	if err != nil {
		return nil, fmt.Errorf("loading callees of %s: %w", key, err)
	}
	return &Neighborhood{Function: fn, Kind: string(kind), Callers: callers, Callees: callees}, nil
}

// Stats counts functions and calls
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.conn.QueryRow(
		`SELECT
			(SELECT COUNT(*) FROM functions),
			(SELECT COUNT(*) FROM functions WHERE owner LIKE 'library:%'),
			(SELECT COUNT(*) FROM calls WHERE kind = 'direct'),
			(SELECT COUNT(*) FROM calls WHERE kind = 'transitive')`,
	).Scan(&s.Functions, &s.LibraryFunctions, &s.DirectCalls, &s.TransitiveCalls)
	return s, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFunction(row scanner) (*Function, error) {
	var fn Function
	err := row.Scan(&fn.ID, &fn.Key, &fn.Owner, &fn.File, &fn.Line, &fn.Name, &fn.QualifiedName)
	if err != nil {
		return nil, err
	}
	return &fn, nil
}

func scanFunctions(rows *sql.Rows) ([]*Function, error) {
	var fns []*Function
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, rows.Err()
}
