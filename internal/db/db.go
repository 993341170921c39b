package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	sqlite3 "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Handle struct {
	DB     *gorm.DB
	Driver string
}

type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	// Verbose włącza logowanie SQL przez gorm
	Verbose bool
}

// Open otwiera bazę dla danego sterownika:
// postgres | mysql | sqlite (czyste Go) | sqlite3 (cgo).
func Open(driver, dsn string, opt Options) (*Handle, error) {
	var dial gorm.Dialector
	switch driver {
	case "postgres", "postgresql":
		dial = postgres.Open(dsn)
	case "mysql":
		dial = mysql.Open(dsn)
	case "sqlite", "":
		dial = sqlite.Open(dsn)
	case "sqlite3":
		dial = sqlite3.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if opt.Verbose {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	gdb, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if gdb.Dialector.Name() == "sqlite" {
		// sqlite ma jednego pisarza; przy :memory: każde połączenie to osobna baza
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opt.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opt.MaxOpenConns)
		}
		if opt.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opt.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return &Handle{DB: gdb, Driver: gdb.Dialector.Name()}, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
