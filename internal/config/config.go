package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// FileName is the JSON config file looked up in the config directory.
const FileName = "markercast.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// StorageConfig selects and configures the campaign document backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// LocalBlobConfig stores media objects on the local filesystem
type LocalBlobConfig struct {
	Root    string `json:"root" mapstructure:"root"`
	BaseURL string `json:"baseUrl" mapstructure:"baseUrl"`
}

// S3BlobConfig stores media objects in an S3 compatible bucket
type S3BlobConfig struct {
	Region     string `json:"region" mapstructure:"region"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	Endpoint   string `json:"endpoint" mapstructure:"endpoint"`
	PublicRead bool   `json:"publicRead" mapstructure:"publicRead"`
}

// RemoteBlobConfig uploads media objects to a remote media server
type RemoteBlobConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// BlobConfig selects and configures the media object store
type BlobConfig struct {
	Type   string           `json:"type" mapstructure:"type"`
	Local  LocalBlobConfig  `json:"local" mapstructure:"local"`
	S3     S3BlobConfig     `json:"s3" mapstructure:"s3"`
	Remote RemoteBlobConfig `json:"remote" mapstructure:"remote"`
}

// DetectionConfig holds the marker presence thresholds
type DetectionConfig struct {
	MaxDistance float64
	MaxRoll     float64
}

// CameraConfig holds the requested capture constraints
type CameraConfig struct {
	FacingMode string
	Width      int
	Height     int
	FPS        int
}

// PlaybackConfig holds overlay video element settings
type PlaybackConfig struct {
	Muted bool
	Loop  bool
}

// ViewerConfig holds scene composition settings
type ViewerConfig struct {
	Policy        string
	MarkerOpacity float64
	FOV           float64
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// AuthConfig holds session token settings
type AuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./campaigns")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "markercast")

	viper.SetDefault("blob.type", "local")
	viper.SetDefault("blob.local.root", "./media")
	viper.SetDefault("blob.local.baseUrl", "")
	viper.SetDefault("blob.s3.region", "us-east-1")
	viper.SetDefault("blob.s3.bucket", "")
	viper.SetDefault("blob.s3.endpoint", "")
	viper.SetDefault("blob.s3.publicRead", true)
	viper.SetDefault("blob.remote.serverUrl", "http://localhost:5000")
	viper.SetDefault("blob.remote.apiKey", "")

	viper.SetDefault("detection.maxDistance", 5.0)
	viper.SetDefault("detection.maxRoll", math.Pi/4)

	viper.SetDefault("camera.facingMode", "environment")
	viper.SetDefault("camera.width", 1280)
	viper.SetDefault("camera.height", 720)
	viper.SetDefault("camera.fps", 30)

	viper.SetDefault("playback.muted", true)
	viper.SetDefault("playback.loop", false)

	viper.SetDefault("viewer.policy", "exclusive")
	viper.SetDefault("viewer.markerOpacity", 0.5)
	viper.SetDefault("viewer.fov", 75.0)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "markercast")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "markercast")
	viper.SetDefault("influx.bucket", "viewer_events")

	viper.SetDefault("auth.secret", "")
	viper.SetDefault("auth.issuer", "markercast")
	viper.SetDefault("auth.ttl", "24h")

	viper.SetDefault("server.addr", ":8080")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the document backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetBlobConfig returns the media object store settings.
func GetBlobConfig() BlobConfig {
	return BlobConfig{
		Type: viper.GetString("blob.type"),
		Local: LocalBlobConfig{
			Root:    viper.GetString("blob.local.root"),
			BaseURL: viper.GetString("blob.local.baseUrl"),
		},
		S3: S3BlobConfig{
			Region:     viper.GetString("blob.s3.region"),
			Bucket:     viper.GetString("blob.s3.bucket"),
			Endpoint:   viper.GetString("blob.s3.endpoint"),
			PublicRead: viper.GetBool("blob.s3.publicRead"),
		},
		Remote: RemoteBlobConfig{
			ServerURL: viper.GetString("blob.remote.serverUrl"),
			APIKey:    viper.GetString("blob.remote.apiKey"),
		},
	}
}

// GetDetectionConfig returns the marker presence thresholds.
func GetDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MaxDistance: viper.GetFloat64("detection.maxDistance"),
		MaxRoll:     viper.GetFloat64("detection.maxRoll"),
	}
}

// GetCameraConfig returns the capture constraints.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		FacingMode: viper.GetString("camera.facingMode"),
		Width:      viper.GetInt("camera.width"),
		Height:     viper.GetInt("camera.height"),
		FPS:        viper.GetInt("camera.fps"),
	}
}

// GetPlaybackConfig returns the overlay video settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Muted: viper.GetBool("playback.muted"),
		Loop:  viper.GetBool("playback.loop"),
	}
}

// GetViewerConfig returns the scene composition settings.
func GetViewerConfig() ViewerConfig {
	return ViewerConfig{
		Policy:        viper.GetString("viewer.policy"),
		MarkerOpacity: viper.GetFloat64("viewer.markerOpacity"),
		FOV:           viper.GetFloat64("viewer.fov"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAuthConfig returns the session token settings.
func GetAuthConfig() AuthConfig {
	return AuthConfig{
		Secret: viper.GetString("auth.secret"),
		Issuer: viper.GetString("auth.issuer"),
		TTL:    viper.GetDuration("auth.ttl"),
	}
}

// GetServerConfig returns the HTTP listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr: viper.GetString("server.addr"),
	}
}
