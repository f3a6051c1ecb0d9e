package model

import "time"

// Product は商品リソースを表す。
type Product struct {
	ID        int64
	Name      string
	Price     float64
	Category  string
	Stock     int
	Owner     string // 作成者のidentity。更新不可
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityID はストアが採番したIDを返す。
func (p Product) EntityID() int64 { return p.ID }

// WithID はIDを設定したコピーを返す。
func (p Product) WithID(id int64) Product {
	p.ID = id
	return p
}

// OwnerIdentity は作成者のidentityを返す。
func (p Product) OwnerIdentity() string { return p.Owner }
