package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ClientConfig はストアフロント（クライアント側）の設定
type ClientConfig struct {
	APIBaseURL  string        // APIのURL
	APITimeout  time.Duration // 1リクエストのタイムアウト
	DevicePath  string        // ゲストカートを置くSQLiteファイル
	AccessToken string        // ログイン済みなら入っている
	GoEnv       string

	TaxRate               decimal.Decimal // 0.18
	DeliveryFee           decimal.Decimal // 50
	FreeDeliveryThreshold decimal.Decimal // 500

	ValidatorConcurrency int // 在庫確認の同時リクエスト数
}

var clientDefaults = map[string]string{
	"STOREFRONT_API_URL":                 "http://localhost:8080",
	"STOREFRONT_API_TIMEOUT":             "10s",
	"STOREFRONT_DEVICE_DB":               "storefront.db",
	"GO_ENV":                             "dev",
	"STOREFRONT_TAX_RATE":                "0.18",
	"STOREFRONT_DELIVERY_FEE":            "50",
	"STOREFRONT_FREE_DELIVERY_THRESHOLD": "500",
	"STOREFRONT_VALIDATOR_CONCURRENCY":   "4",
}

// LoadClient は環境変数（無ければデフォルト）
func LoadClient() (ClientConfig, error) {
	v := newEnv(clientDefaults)

	cfg := ClientConfig{
		APIBaseURL:  v.GetString("STOREFRONT_API_URL"),
		DevicePath:  v.GetString("STOREFRONT_DEVICE_DB"),
		AccessToken: v.GetString("STOREFRONT_TOKEN"),
		GoEnv:       v.GetString("GO_ENV"),
	}

	var err error
	if cfg.APITimeout, err = durationOf(v, "STOREFRONT_API_TIMEOUT"); err != nil {
		return ClientConfig{}, err
	}
	if cfg.TaxRate, err = decimalOf(v, "STOREFRONT_TAX_RATE"); err != nil {
		return ClientConfig{}, err
	}
	if cfg.DeliveryFee, err = decimalOf(v, "STOREFRONT_DELIVERY_FEE"); err != nil {
		return ClientConfig{}, err
	}
	if cfg.FreeDeliveryThreshold, err = decimalOf(v, "STOREFRONT_FREE_DELIVERY_THRESHOLD"); err != nil {
		return ClientConfig{}, err
	}

	n, err := strconv.Atoi(v.GetString("STOREFRONT_VALIDATOR_CONCURRENCY"))
	if err != nil || n < 1 {
		return ClientConfig{}, fmt.Errorf("STOREFRONT_VALIDATOR_CONCURRENCY must be positive number")
	}
	cfg.ValidatorConcurrency = n

	if cfg.TaxRate.IsNegative() {
		return ClientConfig{}, fmt.Errorf("STOREFRONT_TAX_RATE must be >= 0")
	}

	return cfg, nil
}
