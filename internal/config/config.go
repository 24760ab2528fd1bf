package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string

	ServiceNowURL      string
	ServiceNowUser     string
	ServiceNowPassword string

	AzureSubscriptionID string
	AzureResourceGroup  string
	AzureToken          string
	AzureRegion         string

	HistoryLimit  int
	MaxIterations int
	TurnTimeout   time.Duration
	SessionMaxAge time.Duration
	SweepInterval time.Duration
}

// fileConfig mirrors the optional deskbot.yaml overlay. Environment
// variables win over file values so deployments can override per host.
type fileConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"llm"`

	ServiceNow struct {
		InstanceURL string `yaml:"instance_url"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
	} `yaml:"servicenow"`

	Azure struct {
		SubscriptionID string `yaml:"subscription_id"`
		ResourceGroup  string `yaml:"resource_group"`
		Token          string `yaml:"token"`
		Region         string `yaml:"region"`
	} `yaml:"azure"`

	HistoryLimit  int    `yaml:"history_limit"`
	MaxIterations int    `yaml:"max_iterations"`
	TurnTimeout   string `yaml:"turn_timeout"`
	SessionMaxAge string `yaml:"session_max_age"`
	SweepInterval string `yaml:"sweep_interval"`
}

func Load() (Config, error) {
	loadDotEnv(".env")

	var fc fileConfig
	if path := getEnv("DESKBOT_CONFIG", "deskbot.yaml"); path != "" {
		if err := loadYAML(path, &fc); err != nil {
			return Config{}, err
		}
	}

	dataDir := getEnv("DESKBOT_DATA_DIR", fallback(fc.DataDir, "data"))
	cfg := Config{
		HTTPAddr: getEnv("DESKBOT_HTTP_ADDR", fallback(fc.HTTPAddr, ":8080")),
		DataDir:  dataDir,
		DBPath:   getEnv("DESKBOT_DB_PATH", fallback(fc.DBPath, filepath.Join(dataDir, "deskbot.db"))),

		LLMProvider: getEnv("DESKBOT_LLM_PROVIDER", fallback(fc.LLM.Provider, "openai")),
		LLMModel:    getEnv("DESKBOT_LLM_MODEL", fc.LLM.Model),
		LLMAPIKey:   getEnv("DESKBOT_LLM_API_KEY", fc.LLM.APIKey),
		LLMBaseURL:  getEnv("DESKBOT_LLM_BASE_URL", fc.LLM.BaseURL),

		ServiceNowURL:      getEnv("DESKBOT_SERVICENOW_URL", fc.ServiceNow.InstanceURL),
		ServiceNowUser:     getEnv("DESKBOT_SERVICENOW_USER", fc.ServiceNow.Username),
		ServiceNowPassword: getEnv("DESKBOT_SERVICENOW_PASSWORD", fc.ServiceNow.Password),

		AzureSubscriptionID: getEnv("DESKBOT_AZURE_SUBSCRIPTION_ID", fc.Azure.SubscriptionID),
		AzureResourceGroup:  getEnv("DESKBOT_AZURE_RESOURCE_GROUP", fc.Azure.ResourceGroup),
		AzureToken:          getEnv("DESKBOT_AZURE_TOKEN", fc.Azure.Token),
		AzureRegion:         getEnv("DESKBOT_AZURE_REGION", fallback(fc.Azure.Region, "eastus")),

		HistoryLimit:  getEnvInt("DESKBOT_HISTORY_LIMIT", fallbackInt(fc.HistoryLimit, 100)),
		MaxIterations: getEnvInt("DESKBOT_MAX_ITERATIONS", fallbackInt(fc.MaxIterations, 10)),
	}

	var err error
	if cfg.TurnTimeout, err = durationValue("DESKBOT_TURN_TIMEOUT", fc.TurnTimeout, 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxAge, err = durationValue("DESKBOT_SESSION_MAX_AGE", fc.SessionMaxAge, 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationValue("DESKBOT_SWEEP_INTERVAL", fc.SweepInterval, time.Hour); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func fallbackInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func durationValue(key, fileValue string, def time.Duration) (time.Duration, error) {
	raw := getEnv(key, fileValue)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
