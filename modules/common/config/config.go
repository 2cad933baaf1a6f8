package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// Config 구조체 - 시작 시 한 번 읽는 환경변수 (이후 읽기 전용)
type Config struct {
	// Gemini API
	GeminiAPIKeys       []string
	GeminiModel         string
	GeminiAllowedModels []string
	GeminiBackend       string
	GeminiBaseURL       string
	GeminiTimeout       time.Duration
	GeminiMaxRetries    int

	// Vertex AI
	VertexAIProject         string
	VertexAILocation        string
	VertexAICredentialsJSON string

	// Proxy
	HTTPProxy  string
	HTTPSProxy string

	// Redis (일일 사용량 제한용, 선택)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	DailyLimit    int

	// Upload
	UploadDir              string
	MaxUploadBytes         int64
	CompressThresholdBytes int64
	MaxConcurrentRequests  int
	// 요청 하나의 전체 제한 시간 (동시성 대기 + 모델 호출/재시도)
	RequestTimeout time.Duration

	// Server
	Port      string
	PromptDir string
	LogDir    string
}

// LoadConfig - .env + 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg := &Config{
		GeminiAPIKeys:    collectAPIKeys(getEnv("GEMINI_API_KEY", ""), getEnv("GEMINI_API_KEYS", "")),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		GeminiBackend:    strings.ToLower(getEnv("GEMINI_BACKEND", BackendGemini)),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", ""),
		GeminiTimeout:    getEnvDuration("GEMINI_TIMEOUT", 60*time.Second),
		GeminiMaxRetries: getEnvInt("GEMINI_MAX_RETRIES", 3),

		VertexAIProject:         getEnv("VERTEXAI_PROJECT", ""),
		VertexAILocation:        getEnv("VERTEXAI_LOCATION", "us-central1"),
		VertexAICredentialsJSON: getEnv("VERTEXAI_CREDENTIALS_JSON", ""),

		HTTPProxy:  getEnv("HTTP_PROXY", ""),
		HTTPSProxy: getEnv("HTTPS_PROXY", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),
		DailyLimit:    getEnvInt("DAILY_LIMIT", 0),

		UploadDir:              getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes:         int64(getEnvInt("MAX_UPLOAD_MB", 3)) * 1024 * 1024,
		CompressThresholdBytes: int64(getEnvInt("COMPRESS_THRESHOLD_KB", 1024)) * 1024,
		MaxConcurrentRequests:  getEnvInt("MAX_CONCURRENT_REQUESTS", 8),
		RequestTimeout:         getEnvDuration("REQUEST_TIMEOUT", 180*time.Second),

		Port:      getEnv("PORT", "8080"),
		PromptDir: getEnv("PROMPT_DIR", "./prompts"),
		LogDir:    getEnv("LOG_DIR", "./logs"),
	}
	cfg.GeminiAllowedModels = allowedModels(cfg.GeminiModel, getEnv("GEMINI_ALLOWED_MODELS", ""))

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Gemini: %s (backend: %s, keys: %d, timeout: %s)", cfg.GeminiModel, cfg.GeminiBackend, len(cfg.GeminiAPIKeys), cfg.GeminiTimeout)
	log.Printf("   Proxy: %s", orNone(cfg.ProxyURL()))
	log.Printf("   Redis: %s (daily limit: %d)", orNone(cfg.RedisHost), cfg.DailyLimit)
	log.Printf("   Upload: %s (max %d bytes)", cfg.UploadDir, cfg.MaxUploadBytes)
	log.Printf("   Request timeout: %s (max concurrent: %d)", cfg.RequestTimeout, cfg.MaxConcurrentRequests)

	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	switch c.GeminiBackend {
	case BackendGemini:
		if len(c.GeminiAPIKeys) == 0 {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case BackendVertex:
		if c.VertexAIProject == "" {
			return fmt.Errorf("VERTEXAI_PROJECT is required for vertex backend")
		}
	default:
		return fmt.Errorf("unsupported GEMINI_BACKEND: %s", c.GeminiBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}
	if c.GeminiTimeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if c.GeminiMaxRetries < 1 {
		c.GeminiMaxRetries = 1
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// ProxyURL - HTTPS 프록시 우선, 없으면 HTTP 프록시
func (c *Config) ProxyURL() string {
	if c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	return c.HTTPProxy
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// IsModelAllowed - 요청에서 지정한 모델이 허용 목록에 있는지 확인
func (c *Config) IsModelAllowed(model string) bool {
	for _, m := range c.GeminiAllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

func collectAPIKeys(primary, extra string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range append([]string{primary}, strings.Split(extra, ",")...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func allowedModels(defaultModel, extra string) []string {
	models := []string{defaultModel}
	for _, m := range strings.Split(extra, ",") {
		m = strings.TrimSpace(m)
		if m != "" && m != defaultModel {
			models = append(models, m)
		}
	}
	return models
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, s, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if s := os.Getenv(key); s != "" {
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration - "60s" 형식 또는 초 단위 정수
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("⚠️  Invalid %s=%q, using default %s", key, s, defaultValue)
	return defaultValue
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
