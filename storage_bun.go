package cloudobjects

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type storageRecord struct {
	bun.BaseModel `bun:"table:cloudobjects_kv"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// BunStorage is a durable Storage over a bun-managed SQL database. The
// backing table holds one row per key.
type BunStorage struct {
	db *bun.DB
}

// NewBunStorage wraps an existing bun DB, creating the key-value table if
// needed.
func NewBunStorage(ctx context.Context, db *bun.DB) (*BunStorage, error) {
	if _, err := db.NewCreateTable().
		Model((*storageRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create storage table")
	}
	return &BunStorage{db: db}, nil
}

// NewSQLiteStorage opens a sqlite-backed BunStorage at the given DSN, e.g.
// a file path for durable sessions or "file::memory:?cache=shared".
func NewSQLiteStorage(ctx context.Context, dsn string) (*BunStorage, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite storage")
	}
	return NewBunStorage(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
}

func (s *BunStorage) Get(ctx context.Context, key string) (string, bool, error) {
	record := &storageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "storage read failed")
	}
	return record.Value, true, nil
}

func (s *BunStorage) Set(ctx context.Context, key, value string) error {
	record := &storageRecord{Key: key, Value: value}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "storage write failed")
	}
	return nil
}

func (s *BunStorage) Remove(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*storageRecord)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "storage delete failed")
	}
	return nil
}

// Close closes the underlying database.
func (s *BunStorage) Close() error {
	return s.db.Close()
}
