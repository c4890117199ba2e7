package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env 进程环境里携带的运行参数
type Env struct {
	SiteUsername      string
	SitePassword      string
	SaveFetch         bool
	TemplateAccountID string
}

// LoadEnv 读取 .env（存在时）并收集环境变量
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		SiteUsername:      os.Getenv("YUNFEI_USERNAME"),
		SitePassword:      os.Getenv("YUNFEI_PASSWORD"),
		SaveFetch:         truthy(os.Getenv("YUNFEI_SAVE_FETCH")),
		TemplateAccountID: os.Getenv("EXPECTED_TEMPLATE_ACCOUNT_ID"),
	}
}

func truthy(v string) bool {
	switch v {
	case "", "0", "false", "False", "no":
		return false
	}
	return true
}
