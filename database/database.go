package database

import (
	"fmt"
	"log"
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatvote-worker/model"
)

// DB 全局数据库连接
var DB *gorm.DB

// InitDB 初始化数据库连接。
// 设置了MYSQL_DSN时使用MySQL，否则退回本地SQLite文件。
func InitDB() error {
	var (
		db  *gorm.DB
		err error
	)

	dsn := os.Getenv("MYSQL_DSN")
	if dsn != "" {
		log.Printf("使用MySQL数据库")
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	} else {
		path := os.Getenv("VOTE_DB_PATH")
		if path == "" {
			path = "chatvote.db" // 默认本地文件
		}
		log.Printf("使用SQLite数据库: %s", path)
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	}
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 迁移表结构
	err = db.AutoMigrate(
		&model.Poll{},
		&model.Slot{},
		&model.Option{},
		&model.Participant{},
		&model.Ballot{},
	)
	if err != nil {
		return fmt.Errorf("迁移表结构失败: %w", err)
	}

	DB = db
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("获取底层连接失败: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接错误: %v", err)
	}
}
