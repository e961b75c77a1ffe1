package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// 環境変数だけを見る viper。空文字の環境変数は未設定と同じ扱い。
func newEnv(defaults map[string]string) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func atoiRequired(v *viper.Viper, key string) (int, error) {
	s := v.GetString(key)
	if s == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

// GetDuration は壊れた値を0にしてしまうので自分でパースする
func durationOf(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func decimalOf(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be decimal: %w", key, err)
	}
	return d, nil
}
