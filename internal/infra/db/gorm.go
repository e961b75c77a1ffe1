package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はサーバーDB（Postgres）に接続する。dsn は config.Config.DSN()。
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return gdb, nil
}

// ConnectLocal は端末ローカルのSQLiteを開く（ゲストカート保存用）。
// path が ":memory:" ならテスト用のインメモリDB。
func ConnectLocal(path string) (*gorm.DB, error) {
	if path == "" {
		path = "storefront.db"
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// SQLiteは書き込み1本。:memory: は接続ごとに別DBになるので1本に固定。
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}
