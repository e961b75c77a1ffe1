package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// 端末ローカルの保存領域（SQLite 1テーブル）
type DeviceEntry struct {
	Key       string    `gorm:"column:entry_key;type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

func (DeviceEntry) TableName() string { return "device_entries" }

type DeviceStorageGorm struct {
	db *gorm.DB
}

// DI
func NewDeviceStorageGorm(db *gorm.DB) *DeviceStorageGorm {
	return &DeviceStorageGorm{db: db}
}

// テーブル作成
func (s *DeviceStorageGorm) Migrate() error {
	return s.db.AutoMigrate(&DeviceEntry{})
}

func (s *DeviceStorageGorm) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e DeviceEntry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value, true, nil
}

// あれば上書き、無ければ作る（1トランザクション）
func (s *DeviceStorageGorm) Set(ctx context.Context, key string, value []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DeviceEntry{}).
			Where("entry_key = ?", key).
			Updates(map[string]interface{}{
				"payload":    value,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&DeviceEntry{Key: key, Value: value, UpdatedAt: time.Now()}).Error
	})
}

// 無ければ何もしない
func (s *DeviceStorageGorm) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&DeviceEntry{}).Error
}
