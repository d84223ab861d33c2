package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Corpus struct {
		Path string
		Size int
		Seed int64
	}
	Model struct {
		Dir         string
		MaxFeatures int `mapstructure:"max_features"`
		Trees       int
		MaxDepth    int `mapstructure:"max_depth"`
		Seed        int64
		TestRatio   float64 `mapstructure:"test_ratio"`
	}
	LLM struct {
		APIKey      string `mapstructure:"api_key"`
		BaseURL     string `mapstructure:"base_url"`
		Model       string
		Temperature float64
		Timeout     time.Duration
	} `mapstructure:"LLM"`
	HTTP struct {
		Addr string
	}
	Kafka struct {
		Enabled     bool
		Brokers     []string
		Topic       string
		ResultTopic string `mapstructure:"result_topic"`
		GroupID     string `mapstructure:"group_id"`
	}
	MySQL struct {
		DSN     string
		MaxIdle int `mapstructure:"max_idle"`
		MaxOpen int `mapstructure:"max_open"`
	}
	InfluxDB struct {
		URL    string
		Token  string
		Org    string
		Bucket string
	}
	GeoIP struct {
		CityPath string `mapstructure:"city_path"`
		ASNPath  string `mapstructure:"asn_path"`
	}
	Webhook struct {
		URL           string
		MinConfidence float64 `mapstructure:"min_confidence"`
		Cooldown      time.Duration
		Timeout       time.Duration
	}
	Log struct {
		Level string
		Path  string
	}
}

var GlobalConfig Config

// Init 从 config/config.yaml 加载全局配置
func Init() error {
	cfg, err := Load("")
	if err != nil {
		return err
	}
	GlobalConfig = *cfg
	return nil
}

// Load 读取指定路径的配置文件，path 为空时读取 config/config.yaml
// 文件不存在时使用默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix("THREATNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 兼容旧的 Groq 环境变量
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstEnv(v, "GROQ_API_KEY", "VITE_GROQ_API_KEY")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("corpus.path", "data/cyber_threat_dataset.xlsx")
	v.SetDefault("corpus.size", 500)
	v.SetDefault("corpus.seed", 0)

	v.SetDefault("model.dir", "model")
	v.SetDefault("model.max_features", 1000)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.max_depth", 0)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.test_ratio", 0.2)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1/")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 15*time.Second)

	v.SetDefault("http.addr", ":8000")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "threatnet.requests")
	v.SetDefault("kafka.result_topic", "threatnet.results")
	v.SetDefault("kafka.group_id", "threatnet-analyzer")

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_idle", 2)
	v.SetDefault("mysql.max_open", 10)

	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "threatnet")

	v.SetDefault("geoip.city_path", "")
	v.SetDefault("geoip.asn_path", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.min_confidence", 0.8)
	v.SetDefault("webhook.cooldown", time.Hour)
	v.SetDefault("webhook.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
}

func firstEnv(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		_ = v.BindEnv(k, k)
		if val := v.GetString(k); val != "" {
			return val
		}
	}
	return ""
}
