package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 商品。IDはサーバー採番（uuid）、Slugはゲストカートのキー。
type Product struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Slug        string          `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int64           `gorm:"not null" json:"stock"`
	IsActive    bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// 購入できる在庫数。非公開なら0扱い。
func (p Product) AvailableStock() int64 {
	if !p.IsActive || p.Stock < 0 {
		return 0
	}
	return p.Stock
}

// 在庫0 or 非公開は「購入不可」
func (p Product) Purchasable() bool {
	return p.AvailableStock() > 0
}

// ゲストカートで使うキー。slugが無い商品はIDで代用する。
func (p Product) GuestKey() string {
	if p.Slug != "" {
		return p.Slug
	}
	return p.ID
}

// Ref は両方の識別子を持つ参照を返す。
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Slug: p.Slug}
}

// ProductRef はUI側が持っている商品の識別子。
// 片方しか分からないこともあるので、境界をまたぐときはカタログで解決する。
type ProductRef struct {
	ID   string `json:"id,omitempty"`
	Slug string `json:"slug,omitempty"`
}

func (r ProductRef) IsZero() bool {
	return r.ID == "" && r.Slug == ""
}

// ゲストカート用のキー（slug優先）
func (r ProductRef) GuestKey() string {
	if r.Slug != "" {
		return r.Slug
	}
	return r.ID
}
