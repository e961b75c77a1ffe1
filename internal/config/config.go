package config

import (
	"fmt"
	"time"
)

// Configはサーバー全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あれば Postgres の個別設定より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string // 既定 disable

	JWTSecret string // 検証のみ（発行は認証サービス）

	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSなどで使う）

	RedisAddr     string        // 空ならインメモリキャッシュ
	RedisPassword string        // Redisパスワード
	CartCacheTTL  time.Duration // カートスナップショットのTTL
}

// 上から順にチェックする
var requiredServerEnv = []string{
	"PORT",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
	"POSTGRES_DB",
	"POSTGRES_HOST",
	"JWT_SECRET",
	"GO_ENV",
}

// Loadは環境変数から。DATABASE_URL があれば POSTGRES_* は不要。
func Load() (Config, error) {
	v := newEnv(map[string]string{
		"POSTGRES_SSLMODE": "disable",
		"CART_CACHE_TTL":   "5m",
	})

	dbURL := v.GetString("DATABASE_URL")
	for _, key := range requiredServerEnv {
		if dbURL != "" && isPostgresKey(key) {
			continue
		}
		if v.GetString(key) == "" {
			return Config{}, fmt.Errorf("%s is required", key)
		}
	}

	cfg := Config{
		Port:             v.GetString("PORT"),
		DatabaseURL:      dbURL,
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		GoEnv:            v.GetString("GO_ENV"),
		FEURL:            v.GetString("FE_URL"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
	}

	var err error
	if dbURL == "" {
		if cfg.PostgresPort, err = atoiRequired(v, "POSTGRES_PORT"); err != nil {
			return Config{}, err
		}
	}
	if cfg.CartCacheTTL, err = durationOf(v, "CART_CACHE_TTL"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DSN は gorm の postgres ドライバに渡す接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func isPostgresKey(key string) bool {
	switch key {
	case "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST":
		return true
	}
	return false
}
