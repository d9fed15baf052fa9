package setup

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // migrate 命令单独打开 postgres 连接时使用
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// MigrateDB 对 GORM 连接执行全部待执行的迁移
func MigrateDB(db *gorm.DB, driver string) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return MigrateSQL(sqlDB, driver)
}

// OpenSQL 不经过 GORM 直接打开连接，供 migrate 命令使用
func OpenSQL(cfg DBConfig) (*sql.DB, error) {
	dsn, err := cfg.BuildDSN()
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(cfg.Driver, dsn) // "postgres" 由 lib/pq 注册，"mysql" 由 go-sql-driver 注册
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return sqlDB, nil
}

// MigrateSQL 使用内嵌的 SQL 文件执行迁移
func MigrateSQL(sqlDB *sql.DB, driver string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create migration source for %s: %w", driver, err)
	}

	var dbDriver database.Driver
	switch driver {
	case DriverPostgres:
		dbDriver, err = migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	case DriverMySQL:
		dbDriver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logrus.WithFields(logrus.Fields{"driver": driver, "version": version, "dirty": dirty}).Info("Database migration completed successfully")
	return nil
}
