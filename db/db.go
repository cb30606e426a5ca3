package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

const sqlitePrefix = "sqlite://"

type patchedLogger struct {
	zapgorm2.Logger
}

// ErrRecordNotFound and ErrDuplicatedKey will be handled in application logic, let's not forward them to zap/sentry
func (l *patchedLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

// Options specifies how to connect to the database
type Options struct {
	// URI is either a PostgreSQL connection string or sqlite://<path> for local development
	URI    string
	Logger *zap.Logger
}

// New returns an instance for interacting with the database
func New(option Options) (*gorm.DB, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.URI) == 0 {
		return nil, fmt.Errorf("empty URI is invalid")
	}

	gLogger := zapgorm2.New(option.Logger)
	gLogger.LogLevel = gormlogger.Warn
	gLogger.SlowThreshold = time.Second
	gLogger.SkipCallerLookup = false

	var dialector gorm.Dialector
	isSQLite := strings.HasPrefix(option.URI, sqlitePrefix)
	if isSQLite {
		dialector = sqlite.Open(strings.TrimPrefix(option.URI, sqlitePrefix) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	} else {
		dialector = postgres.Open(option.URI)
	}

	// unique violations surface as gorm.ErrDuplicatedKey on both dialects
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         &patchedLogger{Logger: gLogger},
		TranslateError: true,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to database")
	}
	pool, err := db.DB()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot get the connection pool")
	}
	if isSQLite {
		// sqlite allows a single writer
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxIdleConns(1)
		pool.SetMaxOpenConns(20)
	}
	pool.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// TxOptions returns the transaction options used for row-level read-modify-write.
// PostgreSQL runs READ COMMITTED so a transaction that waited on FOR UPDATE reads the row
// as committed by the holder instead of failing serialization. SQLite transactions are
// already serialized, so it returns nil there.
func TxOptions(db *gorm.DB) *sql.TxOptions {
	return txOptionsFor(db.Dialector.Name())
}

func txOptionsFor(dialect string) *sql.TxOptions {
	if dialect == "postgres" {
		return &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
		}
	}
	return nil
}
