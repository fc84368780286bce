package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

const componentCatalog = "catalog"

// slowQuery is the threshold above which statements are logged at WARN.
const slowQuery = 200 * time.Millisecond

// Store is the episode catalogue. It is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	driver string
	log    logger.Logger
}

// Open connects to the database selected by settings and migrates the
// schema.
func Open(settings *conf.CatalogSettings) (*Store, error) {
	log := logger.Global().Module(componentCatalog)

	var dialector gorm.Dialector
	switch settings.Driver {
	case "", "sqlite":
		path := settings.SQLite.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, errors.New(err).
					Component(componentCatalog).
					Category(errors.CategoryFileIO).
					Context("path", path).
					Build()
			}
		}
		dialector = sqlite.Open(path)
	case "mysql":
		m := settings.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			m.Username, m.Password, m.Host, m.Port, m.Database)
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Newf("unsupported catalogue driver %q", settings.Driver).
			Component(componentCatalog).
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQuery),
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open %s catalogue: %w", settings.Driver, err)).
			Component(componentCatalog).
			Category(errors.CategoryDatabase).
			Build()
	}

	if settings.Driver != "mysql" {
		// sqlite allows one writer; a single connection also keeps an
		// in-memory database alive.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Episode{}); err != nil {
		return nil, dbError(err, "migrate")
	}

	log.Info("episode catalogue opened", logger.String("driver", dialector.Name()))
	return &Store{db: db, driver: dialector.Name(), log: log}, nil
}

// Save inserts ep and sets its ID.
func (s *Store) Save(ctx context.Context, ep *Episode) error {
	if err := s.db.WithContext(ctx).Create(ep).Error; err != nil {
		return dbError(err, "insert")
	}
	return nil
}

// ListOptions filters List.
type ListOptions struct {
	SessionID string
	Since     time.Time
	Limit     int // 0 means 100
	Offset    int
}

// List returns episodes newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Episode, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Model(&Episode{})
	if opts.SessionID != "" {
		q = q.Where("session_id = ?", opts.SessionID)
	}
	if !opts.Since.IsZero() {
		q = q.Where("started_at >= ?", opts.Since)
	}

	var out []Episode
	err := q.Order("started_at DESC").Order("id DESC").
		Limit(limit).Offset(opts.Offset).
		Find(&out).Error
	if err != nil {
		return nil, dbError(err, "list")
	}
	return out, nil
}

// Count returns the number of catalogued episodes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Episode{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count")
	}
	return n, nil
}

// MarkArchived flags the episode stored at path as uploaded.
func (s *Store) MarkArchived(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).Model(&Episode{}).
		Where("path = ?", path).
		Update("archived", true).Error
	if err != nil {
		return dbError(err, "update")
	}
	return nil
}

// DeleteByPath removes the rows of a pruned episode file.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	if err := s.db.WithContext(ctx).Where("path = ?", path).Delete(&Episode{}).Error; err != nil {
		return dbError(err, "delete")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	return sqlDB.Close()
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component(componentCatalog).
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}
