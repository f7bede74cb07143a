package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/minidb/internal"
	"github.com/tuannm99/minidb/internal/bufferpool"
	"github.com/tuannm99/minidb/internal/heap"
	"github.com/tuannm99/minidb/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("minidb: database is closed")
	ErrTableExists    = errors.New("minidb: table already exists")
	ErrTableNotFound  = errors.New("minidb: table not found")
)

// TableMeta is the catalog entry for one table heap. The first page id
// is the heap's persistent handle.
type TableMeta struct {
	Name        string    `json:"name"`
	FirstPageID int32     `json:"first_page_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Database owns one disk manager, one shared buffer pool, and the
// catalog of table heaps stored in that file.
type Database struct {
	cfg  *internal.MiniDBConfig
	disk *storage.DiskManager
	pool *bufferpool.Pool

	mu      sync.Mutex
	catalog map[string]*TableMeta
	tables  map[string]*heap.TableHeap
	closed  atomic.Bool
}

// Open constructs the database described by cfg, creating the data
// directory and file as needed. A nil cfg uses the defaults.
func Open(cfg *internal.MiniDBConfig) (*Database, error) {
	if cfg == nil {
		cfg = internal.DefaultConfig()
	}

	var (
		disk *storage.DiskManager
		err  error
	)
	switch {
	case cfg.Storage.Memory:
		disk = storage.NewMemDiskManager()
	case cfg.Storage.DirectIO:
		if err := os.MkdirAll(cfg.Storage.Dir, storage.FileMode0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		disk, err = storage.NewDirectDiskManager(filepath.Join(cfg.Storage.Dir, cfg.Storage.File))
	default:
		if err := os.MkdirAll(cfg.Storage.Dir, storage.FileMode0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		disk, err = storage.NewDiskManager(filepath.Join(cfg.Storage.Dir, cfg.Storage.File))
	}
	if err != nil {
		return nil, err
	}

	db := &Database{
		cfg:     cfg,
		disk:    disk,
		pool:    bufferpool.NewPool(disk, cfg.Storage.PoolSize),
		catalog: make(map[string]*TableMeta),
		tables:  make(map[string]*heap.TableHeap),
	}

	if err := db.loadCatalog(); err != nil {
		_ = disk.Close()
		return nil, err
	}

	slog.Debug("engine: database opened",
		"path", disk.Path(),
		"pages", disk.NumPages(),
		"poolSize", cfg.Storage.PoolSize)
	return db, nil
}

func (db *Database) catalogPath() string {
	return filepath.Join(db.cfg.Storage.Dir, db.cfg.Storage.File+".catalog.json")
}

func (db *Database) loadCatalog() error {
	if db.cfg.Storage.Memory {
		return nil
	}

	data, err := os.ReadFile(db.catalogPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	var metas []*TableMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	for _, m := range metas {
		db.catalog[m.Name] = m
	}
	return nil
}

// saveCatalogLocked persists the catalog as JSON. The caller holds db.mu.
func (db *Database) saveCatalogLocked() error {
	if db.cfg.Storage.Memory {
		return nil
	}

	metas := make([]*TableMeta, 0, len(db.catalog))
	for _, m := range db.catalog {
		metas = append(metas, m)
	}

	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(db.catalogPath(), data, storage.FileMode0644)
}

// CreateTable allocates a fresh heap and registers it in the catalog.
func (db *Database) CreateTable(name string) (*heap.TableHeap, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.catalog[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	tbl, err := heap.NewTableHeap(db.pool)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	db.catalog[name] = &TableMeta{
		Name:        name,
		FirstPageID: tbl.FirstPageID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.saveCatalogLocked(); err != nil {
		return nil, err
	}

	db.tables[name] = tbl
	return tbl, nil
}

// OpenTable returns the heap registered under name, reopening it from
// its first page id if this handle has not touched it yet.
func (db *Database) OpenTable(name string) (*heap.TableHeap, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if tbl, ok := db.tables[name]; ok {
		return tbl, nil
	}

	meta, ok := db.catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	tbl, err := heap.OpenTableHeap(db.pool, meta.FirstPageID)
	if err != nil {
		return nil, err
	}
	db.tables[name] = tbl
	return tbl, nil
}

// Checkpoint flushes every cached page to disk.
func (db *Database) Checkpoint() error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	return db.pool.FlushAll()
}

// Stats reports buffer pool occupancy.
func (db *Database) Stats() string {
	return db.pool.Stats()
}

// Close flushes and closes the database. Idempotent.
func (db *Database) Close() error {
	if db == nil || db.closed.Swap(true) {
		return nil
	}

	if err := db.pool.Close(); err != nil {
		return err
	}
	slog.Debug("engine: database closed", "path", db.disk.Path())
	return db.disk.Close()
}

func (db *Database) ensureOpen() error {
	if db == nil || db.closed.Load() {
		return ErrDatabaseClosed
	}
	return nil
}
