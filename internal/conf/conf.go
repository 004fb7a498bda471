package conf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bootstrap 服务启动配置（config.yaml 顶层结构）
type Bootstrap struct {
	Server  *Server  `json:"server"`
	Data    *Data    `json:"data"`
	Billing *Billing `json:"billing"`
	Payment *Payment `json:"payment"`
	Log     *Log     `json:"log"`
}

// Server 服务端配置
type Server struct {
	Http *Server_HTTP `json:"http"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	// Driver 存储驱动：mysql（默认）或 memory
	Driver   string         `json:"driver"`
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_Rocketmq `json:"rocketmq"`
}

// Data_Database 数据库配置
type Data_Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	AutoMigrate bool   `json:"auto_migrate"`
}

// Data_Redis Redis 配置
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	Db           int32     `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Data_Rocketmq RocketMQ 配置
type Data_Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	RetryTimes  int32    `json:"retry_times"`
	// BalanceTopic 余额变动事件 topic
	BalanceTopic string `json:"balance_topic"`
	// PaymentTopic 支付确认消息 topic
	PaymentTopic string `json:"payment_topic"`
}

// Billing 计费配置
type Billing struct {
	// Services 服务基础积分价格
	Services map[string]int64 `json:"services"`
	// Complexity 复杂度倍率（字符串或数字，按十进制精确解析）
	Complexity          map[string]decimal.Decimal `json:"complexity"`
	Packages            []*Billing_Package         `json:"packages"`
	SubscriptionTiers   []*Billing_SubscriptionTier `json:"subscription_tiers"`
	Stages              []*Billing_Stage           `json:"stages"`
	LowBalanceThreshold int64                      `json:"low_balance_threshold"`
	BalanceCacheTtl     *Duration                  `json:"balance_cache_ttl"`
	LockExpiry          *Duration                  `json:"lock_expiry"`
	DebitRetries        int32                      `json:"debit_retries"`
}

// Billing_Package 积分包
type Billing_Package struct {
	Id           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	BaseCredits  int64           `json:"base_credits"`
	BonusCredits int64           `json:"bonus_credits"`
}

// Billing_SubscriptionTier 订阅档位
type Billing_SubscriptionTier struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	MonthlyCredits int64  `json:"monthly_credits"`
}

// Billing_Stage 工作流阶段定义
type Billing_Stage struct {
	Id     string `json:"id"`
	Order  int32  `json:"order"`
	Budget int64  `json:"budget"`
}

// Payment 支付服务配置
type Payment struct {
	Endpoint  string    `json:"endpoint"`
	Timeout   *Duration `json:"timeout"`
	NotifyUrl string    `json:"notify_url"`
}

// Log 日志配置（对应 go-pkg/logger.Config）
type Log struct {
	Level         string `json:"level"`
	Format        string `json:"format"`
	Output        string `json:"output"`
	FilePath      string `json:"file_path"`
	MaxSize       int    `json:"max_size"`
	MaxAge        int    `json:"max_age"`
	MaxBackups    int    `json:"max_backups"`
	Compress      bool   `json:"compress"`
	EnableConsole bool   `json:"enable_console"`
}

// Duration 支持 "1.5s" 形式字符串或纳秒整数的时长
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}

// AsDuration 返回 time.Duration，nil 时为 0
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

// UnmarshalJSON 解析时长
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON 输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
