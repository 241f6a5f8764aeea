package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/bowerhall/vpload/internal/logger"
	"github.com/bowerhall/vpload/internal/names"
	"github.com/bowerhall/vpload/internal/triples"
)

const metastoreFile = "metastore.db"

// Warehouse is a Catalog backed by a directory of SQLite databases, one file
// per namespace plus a metastore shared by every namespace.
type Warehouse struct {
	dir  string
	meta *sql.DB

	mu         sync.RWMutex
	namespaces map[string]*sql.DB
	current    string
}

var _ Catalog = (*Warehouse)(nil)

// Open opens the warehouse rooted at dir, creating the directory if needed.
func Open(dir string) (*Warehouse, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create warehouse dir: %w", err)
	}

	meta, err := openDB(filepath.Join(dir, metastoreFile))
	if err != nil {
		return nil, err
	}

	return &Warehouse{
		dir:        dir,
		meta:       meta,
		namespaces: make(map[string]*sql.DB),
	}, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := "file:" + filepath.ToSlash(path) + "?_pragma=busy_timeout(60000)&_txlock=immediate"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Metastore returns the database shared by every namespace.
func (w *Warehouse) Metastore() *sql.DB {
	return w.meta
}

// Dir returns the warehouse directory.
func (w *Warehouse) Dir() string {
	return w.dir
}

func (w *Warehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for name, db := range w.namespaces {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close namespace %s: %w", name, err))
		}
	}
	w.namespaces = make(map[string]*sql.DB)
	w.current = ""

	if w.meta != nil {
		errs = append(errs, w.meta.Close())
	}

	return errors.Join(errs...)
}

func (w *Warehouse) namespacePath(name string) string {
	return filepath.Join(w.dir, name+".db")
}

func (w *Warehouse) EnsureNamespace(ctx context.Context, name string) error {
	if !names.ValidNamespace(name) {
		return fmt.Errorf("invalid namespace name %q", name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.namespaces[name]; ok {
		return nil
	}

	db, err := openDB(w.namespacePath(name))
	if err != nil {
		return fmt.Errorf("open namespace %s: %w", name, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("open namespace %s: %w", name, err)
	}

	w.namespaces[name] = db
	logger.Debug("namespace ready", "namespace", name, "path", w.namespacePath(name))

	return nil
}

func (w *Warehouse) UseNamespace(ctx context.Context, name string) error {
	w.mu.Lock()
	_, open := w.namespaces[name]
	w.mu.Unlock()

	if !open {
		if !names.ValidNamespace(name) {
			return fmt.Errorf("%w: invalid namespace %q", ErrUnavailable, name)
		}

		if _, err := os.Stat(w.namespacePath(name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: namespace %s does not exist", ErrUnavailable, name)
			}
			return err
		}

		if err := w.EnsureNamespace(ctx, name); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.current = name
	w.mu.Unlock()

	return nil
}

func (w *Warehouse) db() (*sql.DB, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.current == "" {
		return nil, fmt.Errorf("%w: no namespace selected", ErrUnavailable)
	}

	return w.namespaces[w.current], nil
}

func tableExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, table string) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, queryTableExists, table).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (w *Warehouse) RegisterTriples(ctx context.Context, location string, src triples.Source, policy ExistingPolicy) (bool, error) {
	db, err := w.db()
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryCreateSourceTable); err != nil {
		return false, fmt.Errorf("create source table: %w", err)
	}

	exists, err := tableExists(ctx, tx, TripleTable)
	if err != nil {
		return false, err
	}

	if exists {
		var registered string
		err := tx.QueryRowContext(ctx, querySelectSource).Scan(&registered)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("read triple source: %w", err)
		}

		if policy != ExistingOverwrite {
			if registered != location {
				return false, fmt.Errorf("%w: registered %q, requested %q", ErrSourceChanged, registered, location)
			}

			logger.Info("triple table already registered", "location", location)
			return false, nil
		}

		if err := dropTriples(ctx, tx); err != nil {
			return false, err
		}
		logger.Info("reloading triple table", "previous", registered, "location", location)
	}

	if _, err := tx.ExecContext(ctx, queryCreateTripleTable); err != nil {
		return false, fmt.Errorf("create triple table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, queryInsertTriple)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	var loaded int64
	err = src.Scan(ctx, location, func(t triples.Triple) error {
		if _, err := stmt.ExecContext(ctx, t.Subject, t.Predicate, t.Object); err != nil {
			return fmt.Errorf("insert triple: %w", err)
		}
		loaded++
		return nil
	})
	if err != nil {
		if errors.Is(err, triples.ErrNotFound) {
			return false, fmt.Errorf("register %s: %w: %w", location, ErrUnavailable, err)
		}
		return false, fmt.Errorf("register %s: %w", location, err)
	}

	if _, err := tx.ExecContext(ctx, queryIndexTripleTable); err != nil {
		return false, fmt.Errorf("index triple table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryUpsertSource, location, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("record triple source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	logger.Info("triple table registered", "location", location, "triples", loaded)
	return true, nil
}

// dropTriples removes the triple relation together with every partition
// derived from it.
func dropTriples(ctx context.Context, tx *sql.Tx) error {
	tables, err := listPartitions(ctx, tx)
	if err != nil {
		return err
	}

	for _, table := range tables {
		ident, err := quoteIdent(table)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(queryDropPartition, ident)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, queryDropTripleTable); err != nil {
		return fmt.Errorf("drop triple table: %w", err)
	}

	logger.Debug("triple table dropped", "partitions", len(tables))
	return nil
}

// requireTable returns the current namespace and fails with ErrUnavailable
// when table is missing from it.
func (w *Warehouse) requireTable(ctx context.Context, table string) (*sql.DB, error) {
	db, err := w.db()
	if err != nil {
		return nil, err
	}

	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("%w: table %s is not registered", ErrUnavailable, table)
	}

	return db, nil
}

func (w *Warehouse) DistinctPredicates(ctx context.Context) ([]string, error) {
	db, err := w.requireTable(ctx, TripleTable)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, queryDistinctPredicates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predicates []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}

	return predicates, rows.Err()
}

func (w *Warehouse) CreatePartition(ctx context.Context, table, predicate string, policy ExistingPolicy) error {
	ident, err := quoteIdent(table)
	if err != nil {
		return err
	}

	db, err := w.requireTable(ctx, TripleTable)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, table)
	if err != nil {
		return err
	}

	if exists {
		if policy != ExistingOverwrite {
			return fmt.Errorf("%w: %s", ErrTableExists, table)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(queryDropPartition, ident)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
		logger.Debug("partition dropped", "table", table)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(queryCreatePartition, ident), predicate); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	return tx.Commit()
}

func (w *Warehouse) CountRows(ctx context.Context, table string) (int64, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}

	db, err := w.requireTable(ctx, table)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(queryCountRows, ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}

	return n, nil
}

func (w *Warehouse) CountDistinct(ctx context.Context, table, column string) (int64, error) {
	ident, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}

	col, err := quoteIdent(column)
	if err != nil {
		return 0, err
	}

	db, err := w.requireTable(ctx, table)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(queryCountDistinct, col, ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count distinct %s.%s: %w", table, column, err)
	}

	return n, nil
}

// Partitions lists the partition tables of the current namespace.
func (w *Warehouse) Partitions(ctx context.Context) ([]string, error) {
	db, err := w.db()
	if err != nil {
		return nil, err
	}

	return listPartitions(ctx, db)
}

func listPartitions(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}) ([]string, error) {
	rows, err := q.QueryContext(ctx, queryPartitions)
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

// ScanPartition calls fn for every (s, o) row of a partition table.
func (w *Warehouse) ScanPartition(ctx context.Context, table string, fn func(s, o string) error) error {
	ident, err := quoteIdent(table)
	if err != nil {
		return err
	}

	db, err := w.requireTable(ctx, table)
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(queryScanPartition, ident))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s, o string
		if err := rows.Scan(&s, &o); err != nil {
			return err
		}
		if err := fn(s, o); err != nil {
			return err
		}
	}

	return rows.Err()
}

// quoteIdent double-quotes an identifier made only of sanitized characters.
func quoteIdent(name string) (string, error) {
	if name == "" || names.Sanitize(name) != name {
		return "", fmt.Errorf("invalid identifier %q", name)
	}

	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}
