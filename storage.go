package bridge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

// storageModule implements the AsyncLocalStorage capability: a persistent
// key/value store backed by a per-bridge SQLite file. Methods run on the
// native queue; the database is opened lazily on first use.
type storageModule struct {
	dataDir string
	db      *sql.DB
}

func newStorageModule(dataDir string) *storageModule {
	if dataDir == "" {
		dataDir = "./data"
	}
	return &storageModule{dataDir: dataDir}
}

func (m *storageModule) Methods() map[string]Method {
	return map[string]Method{
		"multiGet":    m.multiGet,
		"multiSet":    m.multiSet,
		"multiRemove": m.multiRemove,
		"getAllKeys":  m.getAllKeys,
		"clear":       m.clear,
	}
}

// ensureDB opens the storage database at {dataDir}/storage/local.sqlite3 and
// creates the kv table. Single caller context (the native queue), so no
// locking is needed.
func (m *storageModule) ensureDB() (*sql.DB, error) {
	if m.db != nil {
		return m.db, nil
	}
	dir := filepath.Join(m.dataDir, "storage")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "local.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("opening storage database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	m.db = db
	return db, nil
}

// multiGet([keys]) returns [[key, value|null], ...] in request order.
func (m *storageModule) multiGet(args []any) (any, error) {
	keys, err := stringSliceArg(args, 0, "multiGet")
	if err != nil {
		return nil, err
	}
	db, err := m.ensureDB()
	if err != nil {
		return nil, err
	}

	pairs := make([][]any, 0, len(keys))
	for _, key := range keys {
		var value string
		err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		switch {
		case err == sql.ErrNoRows:
			pairs = append(pairs, []any{key, nil})
		case err != nil:
			return nil, fmt.Errorf("reading key %q: %w", key, err)
		default:
			pairs = append(pairs, []any{key, value})
		}
	}
	return pairs, nil
}

// multiSet([[key, value], ...]) upserts every pair.
func (m *storageModule) multiSet(args []any) (any, error) {
	pairs, err := pairSliceArg(args, 0, "multiSet")
	if err != nil {
		return nil, err
	}
	db, err := m.ensureDB()
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if _, err := db.Exec(
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			p[0], p[1],
		); err != nil {
			return nil, fmt.Errorf("writing key %q: %w", p[0], err)
		}
	}
	return nil, nil
}

// multiRemove([keys]) deletes every named key; missing keys are ignored.
func (m *storageModule) multiRemove(args []any) (any, error) {
	keys, err := stringSliceArg(args, 0, "multiRemove")
	if err != nil {
		return nil, err
	}
	db, err := m.ensureDB()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if _, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return nil, fmt.Errorf("removing key %q: %w", key, err)
		}
	}
	return nil, nil
}

func (m *storageModule) getAllKeys([]any) (any, error) {
	db, err := m.ensureDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (m *storageModule) clear([]any) (any, error) {
	db, err := m.ensureDB()
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`DELETE FROM kv`)
	return nil, err
}

func (m *storageModule) Close() error {
	if m.db == nil {
		return nil
	}
	db := m.db
	m.db = nil
	return db.Close()
}

// stringSliceArg decodes args[i] as a JSON array of strings.
func stringSliceArg(args []any, i int, method string) ([]string, error) {
	if len(args) <= i {
		return nil, fmt.Errorf("%s: missing argument %d", method, i)
	}
	raw, ok := args[i].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: argument %d must be an array, got %T", method, i, args[i])
	}
	out := make([]string, len(raw))
	for j, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: element %d must be a string, got %T", method, j, v)
		}
		out[j] = s
	}
	return out, nil
}

// pairSliceArg decodes args[i] as a JSON array of [string, string] pairs.
func pairSliceArg(args []any, i int, method string) ([][2]string, error) {
	if len(args) <= i {
		return nil, fmt.Errorf("%s: missing argument %d", method, i)
	}
	raw, ok := args[i].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: argument %d must be an array, got %T", method, i, args[i])
	}
	out := make([][2]string, len(raw))
	for j, v := range raw {
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%s: element %d must be a [key, value] pair", method, j)
		}
		k, kok := pair[0].(string)
		val, vok := pair[1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("%s: element %d must hold two strings", method, j)
		}
		out[j] = [2]string{k, val}
	}
	return out, nil
}
