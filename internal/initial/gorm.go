package initial

import (
	"fmt"
	"log"
	"os"
	"time"

	"QueryLink/internal/config"
	"QueryLink/internal/modules/assistant/domain/query"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm 建立 MySQL 连接并迁移 query_history 表。
// 连接句柄由调用方持有并传入各组件，不使用包级单例。
func OpenGorm(conf *config.Config) (*gorm.DB, error) {
	user := conf.MysqlConfig.User
	password := conf.MysqlConfig.Password
	host := conf.MysqlConfig.Host
	port := conf.MysqlConfig.Port
	dbName := conf.MysqlConfig.DatabaseName
	if dbName == "" {
		dbName = "ot_cdc"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	// 自动迁移，如果没有建表，会自动创建对应的表
	if err := db.AutoMigrate(&query.HistoryEntry{}); err != nil {
		return nil, err
	}
	return db, nil
}

// CloseGorm 释放底层连接池
func CloseGorm(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
