package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	tm "time"

	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// one row per object, keyed by (bucket, object_key)
type sqlObject struct {
	Bucket     string  `gorm:"column:bucket;size:63;primaryKey"`
	ObjectKey  string  `gorm:"column:object_key;size:512;primaryKey"`
	Body       []byte  `gorm:"column:body"`
	ModifiedAt tm.Time `gorm:"column:modified_at;precision:6;not null"`
}

func (sqlObject) TableName() string {
	return "objmutex_objects"
}

func (o sqlObject) info() types.ObjectInfo {
	return types.ObjectInfo{Key: o.ObjectKey, LastModified: o.ModifiedAt.UTC(), Size: int64(len(o.Body))}
}

// objects in a mysql or postgres table
// timestamps come from the injected clock, so workers should run with synced clocks
type SQLStore struct {
	db       *gorm.DB
	bucket   string
	clock    time.Clock
	pageSize int
	keyExpr  string // object_key under a byte-order collation
}

// keys must compare as bytes so ticket order matches the other backends
// mysql gets a binary table collation, postgres collates "C" per query
func keyCollation(dialect string) (tableOptions, keyExpr string) {
	switch dialect {
	case "mysql":
		return "DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin", "object_key"
	case "postgres":
		return "", `object_key COLLATE "C"`
	}
	return "", "object_key"
}

// connects with the configured driver and migrates the objects table
func OpenSQLStore(cfg config.StoreConfig, bucket string, clock time.Clock) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "mysql", "":
		dialector = mysql.New(mysql.Config{
			DSN:               cfg.DSN,
			DefaultStringSize: 256,
		})
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sql store: %w", err)
	}
	migrator := db
	if opts, _ := keyCollation(db.Dialector.Name()); opts != "" {
		migrator = db.Set("gorm:table_options", opts)
	}
	if err := migrator.AutoMigrate(&sqlObject{}); err != nil {
		return nil, fmt.Errorf("migrate sql store: %w", err)
	}

	return NewSQLStore(db, bucket, clock, cfg.PageSize), nil
}

func NewSQLStore(db *gorm.DB, bucket string, clock time.Clock, pageSize int) *SQLStore {
	if pageSize <= 0 {
		pageSize = 1000
	}
	_, keyExpr := keyCollation(db.Dialector.Name())
	return &SQLStore{db: db, bucket: bucket, clock: clock, pageSize: pageSize, keyExpr: keyExpr}
}

func (s *SQLStore) Get(ctx context.Context, key string) (*types.Object, error) {
	var row sqlObject
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND object_key = ?", s.bucket, key).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &types.Object{ObjectInfo: row.info(), Body: row.Body}, nil
}

func (s *SQLStore) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return obj.ObjectInfo, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	row := sqlObject{
		Bucket:     s.bucket,
		ObjectKey:  key,
		Body:       body,
		ModifiedAt: s.clock.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "modified_at"}),
	}).Create(&row).Error
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("bucket = ? AND object_key = ?", s.bucket, key).
		Delete(&sqlObject{}).Error
}

func (s *SQLStore) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	var rows []sqlObject
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND object_key LIKE ? ESCAPE '!' AND "+s.keyExpr+" > ?", s.bucket, escapeLike(prefix)+"%", token).
		Order(s.keyExpr + " ASC").
		Limit(s.pageSize + 1).
		Find(&rows).Error
	if err != nil {
		return types.ListPage{}, err
	}

	var page types.ListPage
	if len(rows) > s.pageSize {
		rows = rows[:s.pageSize]
		page.NextToken = rows[len(rows)-1].ObjectKey
	}
	for _, row := range rows {
		page.Objects = append(page.Objects, row.info())
	}
	return page, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// escapes LIKE wildcards with '!' so keys match literally
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
