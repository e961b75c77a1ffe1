package repository

import "context"

// TxRepos は同じトランザクションに乗ったリポジトリ。
// fn の外に持ち出さない。
type TxRepos interface {
	Carts() CartRepository
	CartItems() CartItemRepository
	Products() ProductRepository
	Inventory() InventoryRepository
}

// TransactionManager は fn がエラーを返したら全部戻す。
// 在庫の確認とカート明細の書き込みを1つにまとめるのに使う。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
