// Package storage persists federation state with gorm.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Drivers accepted by NewDatabase. "sqlite" is pure Go, "sqlite3" needs cgo.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// Database holds every table the federation engine uses.
type Database struct {
	driver     string
	connection string
	db         *gorm.DB
	sqldb      *sql.DB
}

func NewDatabase(driver, connection string) *Database {
	if driver == "" {
		driver = DriverSQLite
	}
	return &Database{driver: driver, connection: connection}
}

func (s *Database) dialector() (gorm.Dialector, error) {
	switch s.driver {
	case DriverSQLite:
		return sqlite.Open(s.connection), nil
	case DriverSQLite3:
		return sqlite.Dialector{DriverName: DriverSQLite3, DSN: s.connection}, nil
	case DriverPostgres:
		return postgres.Open(s.connection), nil
	}
	return nil, errors.Errorf("unknown database driver [%s]", s.driver)
}

func (s *Database) Open() error {
	if s.db != nil {
		s.Close()
	}
	dialector, err := s.dialector()
	if err != nil {
		return err
	}
	gormLogger := logger.New(
		zap.NewStdLog(telemetry.Logger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return errors.Wrapf(err, "opening %s database", s.driver)
	}
	s.sqldb, err = db.DB()
	if err != nil {
		return err
	}
	s.db = db
	err = db.AutoMigrate(
		&RemoteActor{},
		&Follower{},
		&Following{},
		&Interaction{},
		&Reaction{},
		&Tombstone{},
		&OutboxItem{},
		&Post{},
	)
	return errors.Wrap(err, "migrating tables")
}

func (s *Database) Close() {
	if s.db != nil {
		s.sqldb.Close()
		s.sqldb = nil
		s.db = nil
	}
}

func (s *Database) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// found converts gorm's not-found error into a nil result.
func found[T any](v *T, err error, op string) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return v, nil
}
