// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Knowledge     KnowledgeConfig     `mapstructure:"knowledge"`
	Clinic        ClinicConfig        `mapstructure:"clinic"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AgentConfig 配置调度 Agent 的行为参数。
type AgentConfig struct {
	// MaxToolCalls 限制单轮对话允许执行的工具调用数量，超出部分返回结构化错误。
	MaxToolCalls int `mapstructure:"max_tool_calls"`
	// FAQConfidenceGate 是直接采用 FAQ 答案所需的最低置信度。
	FAQConfidenceGate float64 `mapstructure:"faq_confidence_gate"`
}

// KnowledgeConfig 配置 FAQ 知识库的数据来源与检索参数。
type KnowledgeConfig struct {
	// SourceObject 是 MinIO 桶中的知识库对象名。
	SourceObject string `mapstructure:"source_object"`
	// SourcePath 是本地兜底文件路径。
	SourcePath    string  `mapstructure:"source_path"`
	RetrieveK     int     `mapstructure:"retrieve_k"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// ClinicConfig 存储诊所排班与预约相关的配置。
type ClinicConfig struct {
	// APIBaseURL 是工具回调排班 HTTP API 的基地址，缺省指向本服务。
	APIBaseURL string `mapstructure:"api_base_url"`
	// Doctors 覆盖内置的医生排班表，键为医生姓名。
	Doctors map[string]DoctorSchedule `mapstructure:"doctors"`
	// Durations 覆盖各预约类型的时长（分钟），键为预约类型名。
	Durations map[string]int `mapstructure:"durations"`
}

// DoctorSchedule 描述单个医生的出诊安排。
type DoctorSchedule struct {
	// Days 为出诊的星期列表，0 = 周一。
	Days       []int  `mapstructure:"days"`
	Start      string `mapstructure:"start"`
	End        string `mapstructure:"end"`
	LunchStart string `mapstructure:"lunch_start"`
	LunchEnd   string `mapstructure:"lunch_end"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
