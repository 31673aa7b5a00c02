package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"social/models"
)

// Options selects the backing store. A non-empty Host means postgres,
// otherwise Path is opened as a sqlite file.
type Options struct {
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Debug    bool
}

// DSN renders the postgres connection string.
func (o Options) DSN() string {
	sslmode := o.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Password, o.Name, sslmode)
}

func Connect(opts Options, log logrus.FieldLogger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if opts.Debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	if opts.Host == "" {
		path := opts.Path
		if path == "" {
			path = "social.db"
		}
		log.WithField("path", path).Info("Connecting to SQLite database")
		db, err = gorm.Open(sqlite.Open(sqliteDSN(path)), cfg)
	} else {
		log.WithField("host", opts.Host).Info("Connecting to PostgreSQL database")
		db, err = gorm.Open(postgres.Open(opts.DSN()), cfg)
	}
	if err != nil {
		log.WithError(err).Error("Failed to connect to the database")
		return nil, err
	}

	log.Info("Database connection successful")
	return db, nil
}

// sqliteDSN turns on foreign keys and a busy timeout unless the caller
// already passed query options.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// IsDuplicate reports whether err comes from a unique constraint.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
