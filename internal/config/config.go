package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	API     APIConfig
	Picker  PickerConfig
	FakeAPI FakeAPIConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
}

type APIConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	SearchCacheTTL time.Duration
}

type PickerConfig struct {
	Debounce time.Duration
	PerPage  int
}

type FakeAPIConfig struct {
	Port      string
	JWTSecret string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "moviedesk.log"),
		},
		API: APIConfig{
			BaseURL:        getEnv("CATALOG_API_URL", "http://localhost:3000/api"),
			Token:          getEnv("CATALOG_TOKEN", ""),
			Timeout:        time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
			SearchCacheTTL: time.Duration(getEnvAsInt("SEARCH_CACHE_TTL_SECONDS", 30)) * time.Second,
		},
		Picker: PickerConfig{
			Debounce: time.Duration(getEnvAsInt("PICKER_DEBOUNCE_MS", 300)) * time.Millisecond,
			PerPage:  getEnvAsInt("PICKER_PER_PAGE", 20),
		},
		FakeAPI: FakeAPIConfig{
			Port:      getEnv("FAKEAPI_PORT", "3000"),
			JWTSecret: getEnv("JWT_SECRET", "default_secret"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnv("OTEL_ENABLED", "") == "true",
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
