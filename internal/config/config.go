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
	Proctor ProctorConfig
	Keys    APIKeys
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	BridgeLogFilePath  string
	StateFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	OtelEnabled        bool
	OtelEndpoint       string
}

// APIConfig points at the remote exam REST API the agent talks to.
type APIConfig struct {
	BaseURL       string
	Timeout       time.Duration
	SubmitTimeout time.Duration
	AdminCookie   string
}

type ProctorConfig struct {
	MaxTabSwitches        int
	MultiFaceWarnFrames   int
	MultiFaceLockFrames   int
	CalibrationFrames     int
	HeadThreshold         float64
	SustainedGaze         time.Duration
	GazeAction            string // "advisory" or "lock"
	BlurCountsAsTabSwitch bool
	CameraTimeout         time.Duration
	TimerTick             time.Duration
	ViolationTopic        string
	LogEventTopic         string
}

type APIKeys struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/agent.log"),
			BridgeLogFilePath:  getEnv("BRIDGE_LOG_FILE_PATH", "logs/bridge.log"),
			StateFilePath:      getEnv("STATE_FILE_PATH", "state/student.gob"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5000"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		API: APIConfig{
			BaseURL:       getEnv("API_BASE_URL", "http://localhost:5000"),
			Timeout:       getEnvAsDuration("API_TIMEOUT", 15*time.Second),
			SubmitTimeout: getEnvAsDuration("API_SUBMIT_TIMEOUT", 60*time.Second),
			AdminCookie:   getEnv("API_ADMIN_COOKIE", ""),
		},
		Proctor: ProctorConfig{
			MaxTabSwitches:        getEnvAsInt("PROCTOR_MAX_TAB_SWITCHES", 1),
			MultiFaceWarnFrames:   getEnvAsInt("PROCTOR_MULTI_FACE_WARN_FRAMES", 3),
			MultiFaceLockFrames:   getEnvAsInt("PROCTOR_MULTI_FACE_LOCK_FRAMES", 5),
			CalibrationFrames:     getEnvAsInt("PROCTOR_CALIBRATION_FRAMES", 30),
			HeadThreshold:         getEnvAsFloat("PROCTOR_HEAD_THRESHOLD", 0.05),
			SustainedGaze:         getEnvAsDuration("PROCTOR_SUSTAINED_GAZE", 10*time.Second),
			GazeAction:            getEnv("PROCTOR_GAZE_ACTION", "advisory"),
			BlurCountsAsTabSwitch: getEnvAsBool("PROCTOR_BLUR_COUNTS_AS_TAB_SWITCH", false),
			CameraTimeout:         getEnvAsDuration("PROCTOR_CAMERA_TIMEOUT", 30*time.Second),
			TimerTick:             getEnvAsDuration("PROCTOR_TIMER_TICK", time.Second),
			ViolationTopic:        getEnv("PROCTOR_VIOLATION_TOPIC", "EXAM_VIOLATION_REPORT"),
			LogEventTopic:         getEnv("PROCTOR_LOG_EVENT_TOPIC", "EXAM_LOG_EVENT"),
		},
		Keys: APIKeys{
			JWTSecret: getEnv("JWT_SECRET", "default_secret"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 6*time.Hour),
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

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
