package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/licensor/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case DialectMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case DialectPostgres:
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case DialectSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = "licensor.db"
		}
		// immediate transactions take the write lock at BEGIN, which is the
		// closest sqlite gets to the row locks used on the other dialects
		return sqlite.Open(path + "?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is meaningful on db.
func SupportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	switch db.Dialector.Name() {
	case DialectPostgres, DialectMySQL:
		return true
	default:
		return false
	}
}

// MaxOpenConns caps the pool. SQLite allows a single writer, so its pool is
// pinned to one connection and transactions queue in the driver instead of
// failing with SQLITE_BUSY.
func MaxOpenConns(cfg config.Config) int {
	if strings.EqualFold(strings.TrimSpace(cfg.DBType), DialectSQLite) {
		return 1
	}
	return cfg.DBMaxOpenConn
}
