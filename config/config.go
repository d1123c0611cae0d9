package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	Mode      string          `mapstructure:"mode"`     // gin 模式：debug | release | test
	BaseURL   string          `mapstructure:"base_url"` // 通知深链接前缀
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	BodyLimit int64           `mapstructure:"body_limit"` // JSON 请求体上限（字节）
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 接口限流配置（需要 Redis）
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（为空时调度器退化为单实例模式）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置（仅校验外部签发的 Token）
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// MailConfig SMTP 邮件配置
type MailConfig struct {
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"` // 单次投递超时，超时视为失败
	TLS      bool          `mapstructure:"tls"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig 提醒调度器配置
type SchedulerConfig struct {
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	Timezone               string        `mapstructure:"timezone"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	ClaimLease             time.Duration `mapstructure:"claim_lease"`
	LockTTL                time.Duration `mapstructure:"lock_ttl"`
	NotificationRetainDays int           `mapstructure:"notification_retain_days"`
	AutoStart              bool          `mapstructure:"auto_start"`

	// 提醒配置初始值，仅在 reminder_config 表为空时写入
	Defaults ReminderDefaults `mapstructure:"defaults"`
	Urgency  UrgencyConfig    `mapstructure:"urgency"`
}

// UrgencyConfig 通知紧急程度阈值（按剩余天数）
type UrgencyConfig struct {
	HighMaxDays   int    `mapstructure:"high_max_days"`   // 0 ≤ 剩余天数 ≤ HighMaxDays → high
	MediumMaxDays int    `mapstructure:"medium_max_days"` // HighMaxDays < 剩余天数 ≤ MediumMaxDays → medium
	OverdueLevel  string `mapstructure:"overdue_level"`   // 逾期通知使用的紧急程度：high | overdue
}

// ReminderDefaults 提醒配置默认值
type ReminderDefaults struct {
	DaysBefore      []int  `mapstructure:"dias_antecedencia"`
	SendTime        string `mapstructure:"horario_envio"`
	Enabled         bool   `mapstructure:"ativo"`
	IncludeWeekends bool   `mapstructure:"incluir_fim_de_semana"`
	IncludeHolidays bool   `mapstructure:"incluir_feriados"`
}

// Location 解析调度器时区
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.base_url", "http://localhost:5173")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 120)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("server.body_limit", 1<<20)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "koerner360")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "America/Sao_Paulo")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "koerner360")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("mail.tls", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.tick_interval", "5m")
	v.SetDefault("scheduler.timezone", "America/Sao_Paulo")
	v.SetDefault("scheduler.max_attempts", 5)
	v.SetDefault("scheduler.claim_lease", "2m")
	v.SetDefault("scheduler.lock_ttl", "4m")
	v.SetDefault("scheduler.notification_retain_days", 90)
	v.SetDefault("scheduler.auto_start", true)
	v.SetDefault("scheduler.defaults.dias_antecedencia", []int{7, 3, 1})
	v.SetDefault("scheduler.defaults.horario_envio", "09:00")
	v.SetDefault("scheduler.defaults.ativo", true)
	v.SetDefault("scheduler.defaults.incluir_fim_de_semana", false)
	v.SetDefault("scheduler.defaults.incluir_feriados", false)
	v.SetDefault("scheduler.urgency.high_max_days", 1)
	v.SetDefault("scheduler.urgency.medium_max_days", 3)
	v.SetDefault("scheduler.urgency.overdue_level", "high")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("KOERNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("配置校验失败: scheduler.tick_interval 不能小于 1s")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("配置校验失败: scheduler.max_attempts 必须大于 0")
	}
	if c.Mail.Timeout <= 0 {
		return fmt.Errorf("配置校验失败: mail.timeout 必须大于 0")
	}
	if c.Scheduler.ClaimLease <= c.Mail.Timeout {
		return fmt.Errorf("配置校验失败: scheduler.claim_lease 必须大于 mail.timeout")
	}
	if u := c.Scheduler.Urgency; u.HighMaxDays < 0 || u.MediumMaxDays < u.HighMaxDays {
		return fmt.Errorf("配置校验失败: scheduler.urgency 阈值必须满足 0 ≤ high_max_days ≤ medium_max_days")
	}
	if lvl := c.Scheduler.Urgency.OverdueLevel; lvl != "high" && lvl != "overdue" {
		return fmt.Errorf("配置校验失败: scheduler.urgency.overdue_level 只能为 high 或 overdue")
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("配置校验失败: scheduler.timezone 无效: %w", err)
	}
	return nil
}
