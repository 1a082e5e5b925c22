package db

import (
	"fmt"
	"log/slog"

	"answer-judge/internal/config"
	"answer-judge/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func DSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
	)
}

func InitDB(cfg *config.Config) error {
	var err error
	DB, err = gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 自动迁移
	if err := DB.AutoMigrate(
		&model.HistoryEntry{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	slog.Info("数据库初始化成功", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	return nil
}
