package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gigboard/internal/config"
	"gigboard/internal/store"
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Migrate 创建或更新全部表结构。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Job{},
		&Application{},
		&Notification{},
		&Interview{},
		&ChatMessage{},
		&SavedJob{},
		&Rating{},
	)
}

// NewStore 返回基于 gorm 的仓储集合，多步操作均在单个事务内完成。
func NewStore(db *gorm.DB) *store.Store {
	return &store.Store{
		Users:         &userRepo{db: db},
		Jobs:          &jobRepo{db: db},
		Applications:  &applicationRepo{db: db},
		Notifications: &notificationRepo{db: db},
		Interviews:    &interviewRepo{db: db},
		Messages:      &messageRepo{db: db},
		SavedJobs:     &savedJobRepo{db: db},
		Ratings:       &ratingRepo{db: db},
	}
}
