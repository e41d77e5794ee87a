package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GigaChat GigaChatConfig
	Storage  StorageConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	MetricsPort  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

type StorageConfig struct {
	// UploadDir is where original receipt images are kept, addressed by the
	// locator the blob store hands back.
	UploadDir string
}

type KafkaConfig struct {
	// Brokers is a comma-separated broker list; empty disables publishing.
	Brokers []string
	Topic   string
}

// EngineConfig carries the ingestion pipeline's policy parameters. They are
// policy, not invariants: defaults are conservative and live here rather than
// hard-coded in the engine packages.
type EngineConfig struct {
	// TolerancePerLine is the reconciliation slack in minor units per line
	// item. Default 1: one cent of rounding per printed line.
	TolerancePerLine int64
	// ConfidenceThreshold flags extracted fields below this score for review.
	ConfidenceThreshold float64
	// ExtractTimeout bounds a single AI extraction call.
	ExtractTimeout time.Duration
	// ExtractRetries is the number of retries after the first attempt,
	// applied to transient provider errors only.
	ExtractRetries int
	// DefaultCurrency is assumed when the extractor reports none.
	DefaultCurrency string
}

func Load() (*Config, error) {
	// Try to load .env from the working directory or the project root; plain
	// environment variables work too (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "false") == "true"

	tolerance, _ := strconv.ParseInt(getEnv("ENGINE_TOLERANCE_PER_LINE", "1"), 10, 64)
	confidence, _ := strconv.ParseFloat(getEnv("ENGINE_CONFIDENCE_THRESHOLD", "0.5"), 64)
	extractTimeout, _ := strconv.Atoi(getEnv("ENGINE_EXTRACT_TIMEOUT", "60"))
	extractRetries, _ := strconv.Atoi(getEnv("ENGINE_EXTRACT_RETRIES", "2"))

	var brokers []string
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		brokers = strings.Split(v, ",")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			MetricsPort:  getEnv("SERVER_METRICS_PORT", "9090"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "splitsnap"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Storage: StorageConfig{
			UploadDir: getEnv("STORAGE_UPLOAD_DIR", "uploads"),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   getEnv("KAFKA_TOPIC", "splitsnap.events"),
		},
		Engine: EngineConfig{
			TolerancePerLine:    tolerance,
			ConfidenceThreshold: confidence,
			ExtractTimeout:      time.Duration(extractTimeout) * time.Second,
			ExtractRetries:      extractRetries,
			DefaultCurrency:     getEnv("ENGINE_DEFAULT_CURRENCY", "USD"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
