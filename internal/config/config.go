package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Judge    JudgeConfig    `yaml:"judge"`
	Batch    BatchConfig    `yaml:"batch"`
	History  HistoryConfig  `yaml:"history"`
	Report   ReportConfig   `yaml:"report"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname" validate:"required"`
	Charset  string `yaml:"charset"`
}

// JudgeConfig 评审服务（Dify 应用 API）
type JudgeConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// 为空时读取环境变量 JUDGE_API_KEY
	APIKey string `yaml:"api_key"`
	// 应用类型：workflow/chat/completion
	AppType      string `yaml:"app_type" validate:"omitempty,oneof=workflow chat completion"`
	ResponseMode string `yaml:"response_mode" validate:"omitempty,oneof=blocking"`
	// workflow 的 prompt 输入字段名，默认 prompt
	WorkflowPromptKey string `yaml:"workflow_prompt_key"`
	// workflow 输出字段名（为空则自动猜测）
	WorkflowOutputKey string `yaml:"workflow_output_key"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" validate:"min=0"`
	// 评审服务整体请求速率（单条评估与批量共享）
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
	// 默认评估标准，请求未携带 rubric 时使用
	DefaultRubric string `yaml:"default_rubric"`
}

// Configured 评审服务是否具备调用条件
func (j JudgeConfig) Configured() bool {
	return strings.TrimSpace(j.BaseURL) != "" && strings.TrimSpace(j.APIKey) != ""
}

type BatchConfig struct {
	// 相邻两条之间的固定间隔（毫秒）
	InterItemDelayMs int `yaml:"inter_item_delay_ms" validate:"min=0"`
}

type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries" validate:"min=0"`
}

type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Judge.APIKey == "" {
		c.Judge.APIKey = os.Getenv("JUDGE_API_KEY")
	}
	if c.Judge.AppType == "" {
		c.Judge.AppType = "workflow"
	}
	if c.Judge.ResponseMode == "" {
		c.Judge.ResponseMode = "blocking"
	}
	if c.Judge.WorkflowPromptKey == "" {
		c.Judge.WorkflowPromptKey = "prompt"
	}
	if c.Judge.TimeoutSeconds == 0 {
		c.Judge.TimeoutSeconds = 60
	}
	if c.Judge.Burst == 0 {
		c.Judge.Burst = 1
	}
	if c.Batch.InterItemDelayMs == 0 {
		c.Batch.InterItemDelayMs = 100
	}
	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = 50
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "outputs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
