package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sources  SourcesConfig  `yaml:"sources"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Labels   LabelsConfig   `yaml:"labels"`
	Model    ModelConfig    `yaml:"model"`
	Output   OutputConfig   `yaml:"output"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// Enabled gates persistence from the batch pipeline.
	Enabled bool `yaml:"enabled"`
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry_hours"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Addr           string `yaml:"addr"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type MQTTConfig struct {
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

// SourcesConfig points at the raw inputs. Empty optional paths mark the
// source as unavailable.
type SourcesConfig struct {
	Reliability  string   `yaml:"reliability"`
	Weather      string   `yaml:"weather"`
	Schedule     string   `yaml:"schedule"`
	Performance  string   `yaml:"performance"`
	Alerts       string   `yaml:"alerts"`
	AlertsFromDB bool     `yaml:"alerts_from_db"`
	StopNames    string   `yaml:"stop_names"`
	Routes       []string `yaml:"routes"`
	MetricType   string   `yaml:"metric_type"`

	// ReliabilityRoutes narrows the reliability feed only. Empty means Routes.
	ReliabilityRoutes []string `yaml:"reliability_routes"`
	// Timezone dates POSIX-second timestamps in the alert feeds.
	Timezone          string   `yaml:"timezone"`
}

// ReliabilityFilter is the route list applied to the reliability feed.
func (s SourcesConfig) ReliabilityFilter() []string {
	if len(s.ReliabilityRoutes) > 0 {
		return s.ReliabilityRoutes
	}
	return s.Routes
}

// Location resolves Timezone.
func (s SourcesConfig) Location() (*time.Location, error) {
	return daily.LoadZone(s.Timezone)
}

type PipelineConfig struct {
	Start            civil.Date `yaml:"start"`
	End              civil.Date `yaml:"end"`
	TopK             int        `yaml:"top_k"`
	WindowPolicy     string     `yaml:"window_policy"`
	AlertPriorPolicy string     `yaml:"alert_prior_policy"`
	Workers          int        `yaml:"workers"`
	SelectionBins    int        `yaml:"selection_bins"`
	FillValue        float64    `yaml:"fill_value"`
	HeatmapTopN      int        `yaml:"heatmap_top_n"`
}

type LabelsConfig struct {
	Policy    string  `yaml:"policy"`
	LowBelow  float64 `yaml:"low_below"`
	HighAbove float64 `yaml:"high_above"`
}

type ModelConfig struct {
	TestStart       civil.Date `yaml:"test_start"`
	MinTrainRows    int        `yaml:"min_train_rows"`
	NumTrees        int        `yaml:"num_trees"`
	MaxDepth        int        `yaml:"max_depth"`
	MinSamplesSplit int        `yaml:"min_samples_split"`
	MinSamplesLeaf  int        `yaml:"min_samples_leaf"`
	Seed            uint64     `yaml:"seed"`
}

type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
	Publish bool   `yaml:"publish"`
	Channel string `yaml:"channel"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "mbta",
			Password: "mbta_dev_password",
			Name:     "mbta",
			SSLMode:  "disable",
		},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		JWT:     JWTConfig{Secret: "change-me", ExpiryHours: 24},
		CORS:    CORSConfig{AllowedOrigins: "*"},
		Metrics: MetricsConfig{Addr: ":9090", Job: "greenline_pipeline"},
		MQTT:    MQTTConfig{URL: "tcp://localhost:1883", Topic: "mbta/alerts/+"},
		Sources: SourcesConfig{
			Reliability: "data/reliability.csv",
			Routes:      []string{"Green"},
			MetricType:  "Passenger Wait Time",
			Timezone:    daily.ServiceZone,
		},
		Pipeline: PipelineConfig{
			Start:            civil.Date{Year: 2019, Month: 1, Day: 1},
			TopK:             20,
			WindowPolicy:     "partial",
			AlertPriorPolicy: "expanding",
			Workers:          4,
			SelectionBins:    10,
			HeatmapTopN:      30,
		},
		Labels: LabelsConfig{Policy: "fixed", LowBelow: 75, HighAbove: 84},
		Model: ModelConfig{
			TestStart:       civil.Date{Year: 2023, Month: 1, Day: 1},
			MinTrainRows:    100,
			NumTrees:        300,
			MaxDepth:        6,
			MinSamplesSplit: 15,
			MinSamplesLeaf:  8,
			Seed:            42,
		},
		Output: OutputConfig{Channel: "reliability:runs"},
	}
}

// LoadConfig reads .env, the optional YAML file named by PIPELINE_CONFIG,
// then environment overrides.
func LoadConfig() (*Config, error) {
	return LoadFile(getEnv("PIPELINE_CONFIG", ""))
}

func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Server.Port, err = getIntEnv("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	if cfg.Database.Port, err = getIntEnv("DB_PORT", cfg.Database.Port); err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	if cfg.Database.Enabled, err = getBoolEnv("DB_ENABLED", cfg.Database.Enabled); err != nil {
		return fmt.Errorf("invalid DB_ENABLED: %w", err)
	}

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	if cfg.Redis.Port, err = getIntEnv("REDIS_PORT", cfg.Redis.Port); err != nil {
		return fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getIntEnv("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.Redis.Enabled, err = getBoolEnv("REDIS_ENABLED", cfg.Redis.Enabled); err != nil {
		return fmt.Errorf("invalid REDIS_ENABLED: %w", err)
	}

	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	if cfg.JWT.ExpiryHours, err = getIntEnv("JWT_EXPIRY_HOURS", cfg.JWT.ExpiryHours); err != nil {
		return fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}
	cfg.CORS.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)
	cfg.MQTT.URL = getEnv("MQTT_URL", cfg.MQTT.URL)
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", cfg.MQTT.Topic)

	cfg.Sources.Reliability = getEnv("RELIABILITY_PATH", cfg.Sources.Reliability)
	cfg.Sources.Weather = getEnv("WEATHER_PATH", cfg.Sources.Weather)
	cfg.Sources.Schedule = getEnv("SCHEDULE_PATH", cfg.Sources.Schedule)
	cfg.Sources.Performance = getEnv("PERFORMANCE_PATH", cfg.Sources.Performance)
	cfg.Sources.Alerts = getEnv("ALERTS_PATH", cfg.Sources.Alerts)
	cfg.Sources.StopNames = getEnv("STOP_NAMES_PATH", cfg.Sources.StopNames)
	cfg.Sources.Routes = getListEnv("ROUTES", cfg.Sources.Routes)
	cfg.Sources.ReliabilityRoutes = getListEnv("RELIABILITY_ROUTES", cfg.Sources.ReliabilityRoutes)
	cfg.Sources.Timezone = getEnv("SERVICE_TIMEZONE", cfg.Sources.Timezone)
	if cfg.Sources.AlertsFromDB, err = getBoolEnv("ALERTS_FROM_DB", cfg.Sources.AlertsFromDB); err != nil {
		return fmt.Errorf("invalid ALERTS_FROM_DB: %w", err)
	}

	if cfg.Pipeline.Start, err = getDateEnv("PIPELINE_START", cfg.Pipeline.Start); err != nil {
		return fmt.Errorf("invalid PIPELINE_START: %w", err)
	}
	if cfg.Pipeline.End, err = getDateEnv("PIPELINE_END", cfg.Pipeline.End); err != nil {
		return fmt.Errorf("invalid PIPELINE_END: %w", err)
	}
	if cfg.Pipeline.TopK, err = getIntEnv("TOP_K", cfg.Pipeline.TopK); err != nil {
		return fmt.Errorf("invalid TOP_K: %w", err)
	}
	if cfg.Pipeline.Workers, err = getIntEnv("WORKERS", cfg.Pipeline.Workers); err != nil {
		return fmt.Errorf("invalid WORKERS: %w", err)
	}
	cfg.Pipeline.WindowPolicy = getEnv("WINDOW_POLICY", cfg.Pipeline.WindowPolicy)
	cfg.Pipeline.AlertPriorPolicy = getEnv("ALERT_PRIOR_POLICY", cfg.Pipeline.AlertPriorPolicy)

	cfg.Labels.Policy = getEnv("LABEL_POLICY", cfg.Labels.Policy)
	if cfg.Labels.LowBelow, err = getFloatEnv("LABEL_LOW_BELOW", cfg.Labels.LowBelow); err != nil {
		return fmt.Errorf("invalid LABEL_LOW_BELOW: %w", err)
	}
	if cfg.Labels.HighAbove, err = getFloatEnv("LABEL_HIGH_ABOVE", cfg.Labels.HighAbove); err != nil {
		return fmt.Errorf("invalid LABEL_HIGH_ABOVE: %w", err)
	}

	if cfg.Model.TestStart, err = getDateEnv("TEST_START", cfg.Model.TestStart); err != nil {
		return fmt.Errorf("invalid TEST_START: %w", err)
	}
	if cfg.Model.NumTrees, err = getIntEnv("NUM_TREES", cfg.Model.NumTrees); err != nil {
		return fmt.Errorf("invalid NUM_TREES: %w", err)
	}
	if cfg.Model.MaxDepth, err = getIntEnv("MAX_DEPTH", cfg.Model.MaxDepth); err != nil {
		return fmt.Errorf("invalid MAX_DEPTH: %w", err)
	}
	if cfg.Model.MinSamplesSplit, err = getIntEnv("MIN_SAMPLES_SPLIT", cfg.Model.MinSamplesSplit); err != nil {
		return fmt.Errorf("invalid MIN_SAMPLES_SPLIT: %w", err)
	}
	if cfg.Model.MinSamplesLeaf, err = getIntEnv("MIN_SAMPLES_LEAF", cfg.Model.MinSamplesLeaf); err != nil {
		return fmt.Errorf("invalid MIN_SAMPLES_LEAF: %w", err)
	}
	if cfg.Model.MinTrainRows, err = getIntEnv("MIN_TRAIN_ROWS", cfg.Model.MinTrainRows); err != nil {
		return fmt.Errorf("invalid MIN_TRAIN_ROWS: %w", err)
	}
	if cfg.Model.Seed, err = getUintEnv("SEED", cfg.Model.Seed); err != nil {
		return fmt.Errorf("invalid SEED: %w", err)
	}

	cfg.Output.CSVPath = getEnv("OUTPUT_CSV", cfg.Output.CSVPath)
	if cfg.Output.Publish, err = getBoolEnv("PUBLISH_RUNS", cfg.Output.Publish); err != nil {
		return fmt.Errorf("invalid PUBLISH_RUNS: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Sources.Reliability == "" {
		problems = append(problems, "sources.reliability is required")
	}
	if _, err := c.Sources.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("sources.timezone %q", c.Sources.Timezone))
	}
	if c.Pipeline.TopK <= 0 {
		problems = append(problems, "pipeline.top_k must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		problems = append(problems, "pipeline.workers must be positive")
	}
	if c.Pipeline.SelectionBins < 2 {
		problems = append(problems, "pipeline.selection_bins must be at least 2")
	}
	switch c.Pipeline.WindowPolicy {
	case "partial", "strict":
	default:
		problems = append(problems, fmt.Sprintf("pipeline.window_policy %q", c.Pipeline.WindowPolicy))
	}
	switch c.Pipeline.AlertPriorPolicy {
	case "expanding", "prior_years":
	default:
		problems = append(problems, fmt.Sprintf("pipeline.alert_prior_policy %q", c.Pipeline.AlertPriorPolicy))
	}
	if c.Pipeline.Start.IsValid() && c.Pipeline.End.IsValid() && c.Pipeline.End.Before(c.Pipeline.Start) {
		problems = append(problems, "pipeline.end before pipeline.start")
	}
	switch c.Labels.Policy {
	case "fixed", "tertile", "stddev":
	default:
		problems = append(problems, fmt.Sprintf("labels.policy %q", c.Labels.Policy))
	}
	if c.Labels.LowBelow >= c.Labels.HighAbove {
		problems = append(problems, "labels.low_below must be below labels.high_above")
	}
	if !c.Model.TestStart.IsValid() {
		problems = append(problems, "model.test_start is required")
	}
	if c.Model.NumTrees <= 0 || c.Model.MaxDepth <= 0 {
		problems = append(problems, "model.num_trees and model.max_depth must be positive")
	}
	if c.Model.MinSamplesSplit < 2 {
		problems = append(problems, "model.min_samples_split must be at least 2")
	}
	if c.Model.MinSamplesLeaf < 1 {
		problems = append(problems, "model.min_samples_leaf must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getUintEnv(key string, fallback uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseUint(value, 10, 64)
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func getDateEnv(key string, fallback civil.Date) (civil.Date, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return civil.ParseDate(value)
}

func getListEnv(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
