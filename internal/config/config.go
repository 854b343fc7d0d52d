package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"geo_gate/internal/dataType"
)

var validate = validator.New()

type PlanLimits struct {
	Free    int64 `yaml:"free" validate:"gte=0"`
	Premium int64 `yaml:"premium" validate:"gte=0"`
	Plus    int64 `yaml:"plus" validate:"gte=0"`
}

type MainConfig struct {
	Port                string        `yaml:"port" validate:"required,numeric"`
	WebPath             string        `yaml:"web_path" validate:"required,startswith=/"`
	RulePath            string        `yaml:"rule_path" validate:"required"`
	LogPath             string        `yaml:"log_path" validate:"required"`
	NodeName            string        `yaml:"node_name"`
	ConnectingIPHeaders []string      `yaml:"connecting_ip_headers"`
	GeoIPDBPath         string        `yaml:"geoip_db_path"`
	GeoIPReload         time.Duration `yaml:"geoip_reload"`
	PostgresDSN         string        `yaml:"postgres_dsn"`
	RedisAddr           string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword       string        `yaml:"redis_password"`
	RedisDB             int           `yaml:"redis_db" validate:"gte=0"`
	KafkaBrokers        []string      `yaml:"kafka_brokers" validate:"dive,hostname_port"`
	KafkaTopic          string        `yaml:"kafka_topic" validate:"required_with=KafkaBrokers"`
	WebhookSecret       string        `yaml:"webhook_secret"`
	UsageGCInterval     time.Duration `yaml:"usage_gc_interval" validate:"gte=0"`
	Plans               PlanLimits    `yaml:"plans"`
}

func DefaultMainConfig() MainConfig {
	return MainConfig{
		Port:                "25580",
		WebPath:             "/apps/geo",
		RulePath:            "/www/geo_gate/config/rules",
		LogPath:             "/www/geo_gate/log/",
		NodeName:            "Geo Gate",
		ConnectingIPHeaders: []string{"X-Shopify-Client-IP", "CF-Connecting-IP"},
		GeoIPReload:         time.Hour,
		KafkaTopic:          "geo-gate-analytics",
		UsageGCInterval:     6 * time.Hour,
		Plans: PlanLimits{
			Free:    100,
			Premium: 2500,
			Plus:    10000,
		},
	}
}

// LoadMainConfig Read the configuration file and return the configuration object
func LoadMainConfig(basePath string) (*MainConfig, error) {
	defaultCfg := DefaultMainConfig()

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", "geo_gate.yml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		applyEnv(&defaultCfg)
		return &defaultCfg, err
	}

	cfg := DefaultMainConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		applyEnv(&defaultCfg)
		return &defaultCfg, err
	}
	applyEnv(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return &cfg, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Plan returns the plan fact for a plan kind; unknown kinds get the free limit.
func (c *MainConfig) Plan(kind dataType.PlanKind) dataType.Plan {
	switch kind {
	case dataType.PlanPremium:
		return dataType.Plan{Kind: kind, VisitorLimit: c.Plans.Premium}
	case dataType.PlanPlus:
		return dataType.Plan{Kind: kind, VisitorLimit: c.Plans.Plus}
	default:
		return dataType.Plan{Kind: dataType.PlanFree, VisitorLimit: c.Plans.Free}
	}
}

func applyEnv(cfg *MainConfig) {
	cfg.Port = getEnv("GEO_GATE_PORT", cfg.Port)
	cfg.PostgresDSN = getEnv("GEO_GATE_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = getEnv("GEO_GATE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("GEO_GATE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("GEO_GATE_REDIS_DB", cfg.RedisDB)
	cfg.GeoIPDBPath = getEnv("GEO_GATE_GEOIP_DB", cfg.GeoIPDBPath)
	cfg.WebhookSecret = getEnv("GEO_GATE_WEBHOOK_SECRET", cfg.WebhookSecret)
	if brokers := dataType.ParseList(os.Getenv("GEO_GATE_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
