package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/facetfs/internal/schema"
)

// SQLiteStore persists the content tree in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	primary_type TEXT NOT NULL,
	mixins TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS children (
	parent_id TEXT NOT NULL,
	ord INTEGER NOT NULL,
	name TEXT NOT NULL,
	child_id TEXT NOT NULL,
	PRIMARY KEY (parent_id, ord)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS properties (
	node_id TEXT NOT NULL,
	ord INTEGER NOT NULL,
	name TEXT NOT NULL,
	type INTEGER NOT NULL,
	multiple INTEGER NOT NULL,
	vals BLOB NOT NULL,
	PRIMARY KEY (node_id, name)
) WITHOUT ROWID;
`

// OpenSQLite opens (creating if needed) the database at path and makes
// sure a root node exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(
		"INSERT OR IGNORE INTO nodes (id, parent_id, primary_type) VALUES (?, NULL, ?)",
		string(RootID), schema.NTRoot,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create root: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetNodeState(ctx context.Context, id ID) (*NodeState, error) {
	var (
		parent      sql.NullString
		primaryType string
		mixins      string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT parent_id, primary_type, mixins FROM nodes WHERE id = ?", string(id),
	).Scan(&parent, &primaryType, &mixins)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query node %s: %w", id, err)
	}

	st := NewNodeState(id, nil, primaryType)
	if parent.Valid {
		st.ParentID = ID(parent.String)
	}
	if mixins != "" {
		st.Mixins = strings.Fields(mixins)
		sortMixins(st)
	}

	if err := s.loadProperties(ctx, st, id); err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, st, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) loadProperties(ctx context.Context, st *NodeState, id ID) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, type, multiple, vals FROM properties WHERE node_id = ? ORDER BY ord", string(id))
	if err != nil {
		return fmt.Errorf("query properties of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			p    Property
			typ  int
			mult int
			blob []byte
		)
		if err := rows.Scan(&p.Name, &typ, &mult, &blob); err != nil {
			return fmt.Errorf("scan property of %s: %w", id, err)
		}
		if err := msgpack.Unmarshal(blob, &p.Values); err != nil {
			return fmt.Errorf("decode property %s of %s: %w", p.Name, id, err)
		}
		p.Type = schema.PropertyType(typ)
		p.Multiple = mult != 0
		st.Properties = append(st.Properties, p)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadChildren(ctx context.Context, st *NodeState, id ID) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, child_id FROM children WHERE parent_id = ? ORDER BY ord", string(id))
	if err != nil {
		return fmt.Errorf("query children of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	sb := NewSiblings(st)
	for rows.Next() {
		var name, child string
		if err := rows.Scan(&name, &child); err != nil {
			return fmt.Errorf("scan child of %s: %w", id, err)
		}
		sb.Add(name, ID(child))
	}
	return rows.Err()
}

// PutNode replaces the node, its properties and its child list in one
// transaction.
func (s *SQLiteStore) PutNode(ctx context.Context, st *NodeState) error {
	id, ok := st.ID.(ID)
	if !ok {
		return fmt.Errorf("put node: %s is not a physical id", st.ID.Key())
	}
	if err := checkPhysicalChildren(st); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	var parent any
	if p, ok := st.ParentID.(ID); ok {
		parent = string(p)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO nodes (id, parent_id, primary_type, mixins) VALUES (?, ?, ?, ?)",
		string(id), parent, st.PrimaryType, strings.Join(st.Mixins, " "),
	); err != nil {
		return fmt.Errorf("write node %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM properties WHERE node_id = ?", string(id)); err != nil {
		return fmt.Errorf("clear properties of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM children WHERE parent_id = ?", string(id)); err != nil {
		return fmt.Errorf("clear children of %s: %w", id, err)
	}

	for i, p := range st.Properties {
		blob, err := msgpack.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("encode property %s of %s: %w", p.Name, id, err)
		}
		mult := 0
		if p.Multiple {
			mult = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO properties (node_id, ord, name, type, multiple, vals) VALUES (?, ?, ?, ?, ?, ?)",
			string(id), i, p.Name, int(p.Type), mult, blob,
		); err != nil {
			return fmt.Errorf("write property %s of %s: %w", p.Name, id, err)
		}
	}
	for i, c := range st.Children {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO children (parent_id, ord, name, child_id) VALUES (?, ?, ?, ?)",
			string(id), i, c.Name, c.ID.Key(),
		); err != nil {
			return fmt.Errorf("write child %s of %s: %w", c.Segment(), id, err)
		}
	}
	return tx.Commit()
}

var (
	_ ReadWriter = (*SQLiteStore)(nil)
	_ ReadWriter = (*MemoryStore)(nil)
)
