package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Camera      CameraConfig      `mapstructure:"camera"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Encoder     EncoderConfig     `mapstructure:"encoder"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Enrollment  EnrollmentConfig  `mapstructure:"enrollment"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Weather     WeatherConfig     `mapstructure:"weather"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server and data directory settings.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DataDir         string `mapstructure:"data_dir"`
	SnapshotDir     string `mapstructure:"snapshot_dir"`
	LocalesDir      string `mapstructure:"locales_dir"`
	DefaultLanguage string `mapstructure:"default_language"`
	SessionSecret   string `mapstructure:"session_secret"`
	Timezone        string `mapstructure:"timezone"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds the SQLite profile store settings.
type DBConfig struct {
	File string `mapstructure:"file"`
}

// CameraConfig holds settings for the local camera frame source.
type CameraConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	DeviceID int  `mapstructure:"device_id"`
	Width    int  `mapstructure:"width"`
	Height   int  `mapstructure:"height"`
	// TickIntervalMs is the frame delivery interval for the pipeline loop.
	TickIntervalMs int `mapstructure:"tick_interval_ms"`
}

// DetectorConfig holds the face detector model parameters.
type DetectorConfig struct {
	ModelPath           string  `mapstructure:"model_path"`
	InputWidth          int     `mapstructure:"input_width"`
	InputHeight         int     `mapstructure:"input_height"`
	NumClasses          int     `mapstructure:"num_classes"`
	ConfidenceThreshold float32 `mapstructure:"confidence_threshold"`
	IoUThreshold        float64 `mapstructure:"iou_threshold"`
}

// EncoderConfig holds settings for the face embedding sidecar service.
type EncoderConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CropSize       int    `mapstructure:"crop_size"`
}

// RecognitionConfig holds the matching thresholds.
type RecognitionConfig struct {
	// Threshold is the maximum Euclidean distance that still counts as a match.
	Threshold float64 `mapstructure:"threshold"`
	// StabilityFrames is the number of consecutive identical best matches
	// required before a match is confirmed.
	StabilityFrames int `mapstructure:"stability_frames"`
	// MaxEmbeddings bounds the rolling embedding window per profile.
	MaxEmbeddings int `mapstructure:"max_embeddings"`
	// TrackIoUThreshold is the minimum box overlap for frame-to-frame
	// face track association.
	TrackIoUThreshold float64 `mapstructure:"track_iou_threshold"`
	// TrackMaxMisses is how many frames a track survives without a box.
	TrackMaxMisses int `mapstructure:"track_max_misses"`
}

// EnrollmentConfig holds the enrollment session parameters.
type EnrollmentConfig struct {
	SamplesRequired        int     `mapstructure:"samples_required"`
	MinCaptureIntervalSecs int     `mapstructure:"min_capture_interval_seconds"`
	OutlierThreshold       float64 `mapstructure:"outlier_threshold"`
}

// MQTTConfig holds settings for the MQTT announce channel.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// WeatherConfig holds settings for the Open-Meteo client.
type WeatherConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	DefaultLat     float64 `mapstructure:"default_lat"`
	DefaultLon     float64 `mapstructure:"default_lon"`
	DefaultName    string  `mapstructure:"default_name"`
	RefreshMinutes int     `mapstructure:"refresh_minutes"`
}

// CleanupConfig holds snapshot retention settings.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables overlay the file values.
	v.AutomaticEnv()
	v.SetEnvPrefix("SELF_DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for every configuration key.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.snapshot_dir", "/data/users")
	v.SetDefault("server.locales_dir", "./web/locales")
	v.SetDefault("server.default_language", "en")
	v.SetDefault("server.session_secret", "self-discovery")
	v.SetDefault("server.timezone", "UTC")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/self-discovery.log")

	// DB defaults
	v.SetDefault("db.file", "/data/self-discovery.db")

	// Camera defaults
	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.device_id", 0)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.tick_interval_ms", 100)

	// Detector defaults (YOLOv5s personface topology)
	v.SetDefault("detector.input_width", 640)
	v.SetDefault("detector.input_height", 640)
	v.SetDefault("detector.num_classes", 1)
	v.SetDefault("detector.confidence_threshold", 0.4)
	v.SetDefault("detector.iou_threshold", 0.4)

	// Encoder defaults
	v.SetDefault("encoder.url", "http://localhost:18081")
	v.SetDefault("encoder.timeout_seconds", 10)
	v.SetDefault("encoder.crop_size", 160)

	// Recognition defaults
	v.SetDefault("recognition.threshold", 0.6)
	v.SetDefault("recognition.stability_frames", 3)
	v.SetDefault("recognition.max_embeddings", 10)
	v.SetDefault("recognition.track_iou_threshold", 0.3)
	v.SetDefault("recognition.track_max_misses", 5)

	// Enrollment defaults
	v.SetDefault("enrollment.samples_required", 4)
	v.SetDefault("enrollment.min_capture_interval_seconds", 2)
	v.SetDefault("enrollment.outlier_threshold", 0.5)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "self-discovery")
	v.SetDefault("mqtt.topic", "kiosk/greetings")

	// Weather defaults (Brasov, Romania)
	v.SetDefault("weather.enabled", true)
	v.SetDefault("weather.default_lat", 45.6427)
	v.SetDefault("weather.default_lon", 25.5887)
	v.SetDefault("weather.default_name", "Brasov, Romania")
	v.SetDefault("weather.refresh_minutes", 10)

	// Cleanup defaults
	v.SetDefault("cleanup.retention_days", 30)
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Server.SnapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	logDir := filepath.Dir(cfg.Log.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
