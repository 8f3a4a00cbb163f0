package util

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv 根据环境加载 .env 文件（.env.development / .env.production）
func LoadEnv(env string) error {
	filename := ".env." + env
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		filename = ".env"
	}
	return godotenv.Load(filename)
}

func GetEnv(key string) string { return os.Getenv(key) }

func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 { return cast.ToInt64(os.Getenv(key)) }

func GetBoolEnv(key string) bool { return cast.ToBool(os.Getenv(key)) }

func GetFloatEnv(key string) float64 { return cast.ToFloat64(os.Getenv(key)) }

func GetDurationEnv(key string) int64 { return cast.ToInt64(os.Getenv(key)) }
