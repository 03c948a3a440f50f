package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite"
)

// SQLiteGateway stores the two blobs as YAML documents in a single table.
// The database is opened on first use, so a missing or damaged file
// surfaces as a Load or Save error rather than at construction.
type SQLiteGateway struct {
	Path string

	mu         sync.Mutex
	conn       *sql.DB
	unreadable map[string]bool // keys that failed to parse at the last Load
}

// NewSQLiteGateway returns a gateway for the database at path without
// opening it.
func NewSQLiteGateway(path string) (*SQLiteGateway, error) {
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"SQLite path is empty",
			"Set state.sqlite_path or state.dir in loadwatch.yaml")
	}
	return &SQLiteGateway{Path: path, unreadable: make(map[string]bool)}, nil
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteGateway, error) {
	g, err := NewSQLiteGateway(path)
	if err != nil {
		return nil, err
	}
	if _, err := g.db(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// db opens and migrates the database once. A failed open is retried on
// the next call.
func (g *SQLiteGateway) db(ctx context.Context) (*sql.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		return g.conn, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.Path), 0o700); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrPersist,
			"Couldn't create the state directory", "")
	}

	conn, err := sql.Open("sqlite", g.Path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't open %s", g.Path), "")
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't open %s", g.Path),
			"Check that the file is a SQLite database and is writable")
	}
	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't prepare %s", g.Path),
			"Check that the file is a SQLite database and is writable")
	}
	_ = os.Chmod(g.Path, 0o600)

	g.conn = conn
	return conn, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := conn.ExecContext(ctx, schema)
	return err
}

// Load reads both blobs. Absent rows read as empty. When one blob can't be
// parsed the other is still returned along with the error, and the next
// Save copies the broken blob to a "<key>.corrupt" row before replacing it.
func (g *SQLiteGateway) Load(ctx context.Context) (*Snapshot, error) {
	conn, err := g.db(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	var firstErr error

	var servers serversBlob
	if err := g.get(ctx, conn, serversName, &servers); err != nil {
		firstErr = err
	} else {
		snap.Servers = servers.Servers
	}

	var thresholds thresholdsBlob
	if err := g.get(ctx, conn, thresholdsName, &thresholds); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		snap.Thresholds = thresholds.Thresholds
	}

	return snap, firstErr
}

// Save replaces both blobs in one transaction.
func (g *SQLiteGateway) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		snap = &Snapshot{}
	}

	serversData, err := yaml.Marshal(serversBlob{Version: SchemaVersion, Servers: snap.Servers})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist, "Couldn't encode servers", "")
	}
	thresholdsData, err := yaml.Marshal(thresholdsBlob{Version: SchemaVersion, Thresholds: snap.Thresholds})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist, "Couldn't encode thresholds", "")
	}

	conn, err := g.db(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist, "Couldn't start a state transaction", "")
	}
	defer func() { _ = tx.Rollback() }()

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().Unix()
	for _, key := range []string{serversName, thresholdsName} {
		if !g.unreadable[key] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO blobs (key, data, updated_at)
		SELECT ?, data, ? FROM blobs WHERE key = ?
		`, key+corruptSuffix, now, key); err != nil {
			return errors.WrapWithCode(err, errors.ErrPersist,
				fmt.Sprintf("Couldn't keep a copy of the unreadable %s", key), "")
		}
	}

	query := `
	INSERT INTO blobs (key, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	for _, row := range []struct {
		key  string
		data []byte
	}{
		{serversName, serversData},
		{thresholdsName, thresholdsData},
	} {
		if _, err := tx.ExecContext(ctx, query, row.key, row.data, now); err != nil {
			return errors.WrapWithCode(err, errors.ErrPersist,
				fmt.Sprintf("Couldn't write %s", row.key), "")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist, "Couldn't commit state", "")
	}
	clear(g.unreadable)
	return nil
}

// UpdatedAt returns when a blob was last written, or the zero time.
func (g *SQLiteGateway) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	conn, err := g.db(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var unix int64
	err = conn.QueryRowContext(ctx, `SELECT updated_at FROM blobs WHERE key = ?`, key).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.WrapWithCode(err, errors.ErrPersist, "Couldn't query state", "")
	}
	return time.Unix(unix, 0), nil
}

// Close closes the database if it was opened.
func (g *SQLiteGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

func (g *SQLiteGateway) get(ctx context.Context, conn *sql.DB, key string, v any) error {
	var data []byte
	err := conn.QueryRowContext(ctx, `SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't read %s", key), "")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := yaml.Unmarshal(data, v); err != nil {
		g.unreadable[key] = true
		return errors.WrapWithCode(err, errors.ErrPersist,
			fmt.Sprintf("Couldn't parse %s", key),
			fmt.Sprintf("The stored blob is corrupt. It is kept as %s at the next save", key+corruptSuffix))
	}
	delete(g.unreadable, key)
	return nil
}
