// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/joho/godotenv"

	"github.com/WLONEGI/Sol-LeWitt-sub000/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// HTTP / WS
	ListenAddr     string `env:"LISTEN_ADDR" default:":8080"`
	WSReadLimit    int    `env:"WS_READ_LIMIT" default:"4194304" min:"1024"` // 4MB
	WSPingSec      int    `env:"WS_PING_SEC" default:"30" min:"1"`

	// Timeline engine
	MaxEvents      int `env:"MAX_EVENTS" default:"200" min:"1"`
	CoalesceMS     int `env:"COALESCE_MS" default:"16" min:"1"`
	MsgCountUnit   int `env:"MSG_COUNT_UNIT" default:"1000" min:"1"`
	FollowupLimit  int `env:"FOLLOWUP_LIMIT" default:"3" min:"1"`
	SessionIdleMin int `env:"SESSION_IDLE_MIN" default:"120" min:"1"`

	// PostgreSQL (可选; 为空时仅内存运行)
	PostgresConnStr        string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema         string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize    int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize    int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
	PostgresPoolTimeoutSec int    `env:"POSTGRES_POOL_TIMEOUT_SEC" default:"10" min:"1"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
	LogDir   string `env:"LOG_DIR"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
//
// 若工作目录存在 .env 文件则先行载入 (已存在的环境变量不被覆盖)。
func Load() *Config {
	_ = godotenv.Load()
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
