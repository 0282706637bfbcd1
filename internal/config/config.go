package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "captioner.cfg.json"

// ServerConfig holds caption server settings.
type ServerConfig struct {
	Host            string
	Port            int
	RenderingMethod int
	CaptionsFile    string
	QRFile          string
	StatusFile      string
	MaxFrameSize    int
	WaitForOperator bool
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ViewerConfig holds viewer bridge and frame loop settings.
type ViewerConfig struct {
	Addr            string
	FPS             int
	IndicatorOffset string
	TargetField     string
	Colors          string
	AnchorHeight    float64
	RotateStep      float64
	Keys            map[string]string
	Speakers        []string
	SendQueueSize   int
}

// SerialConfig holds serial focus tracker settings.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// MockConfig holds mock focus source settings.
type MockConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Seed        int64
}

// Sector maps an azimuth range in degrees, relative to the centre azimuth,
// to a juror.
type Sector struct {
	Juror string  `mapstructure:"juror"`
	From  float64 `mapstructure:"from"`
	To    float64 `mapstructure:"to"`
}

// OrientationConfig holds orientation focus source settings.
type OrientationConfig struct {
	Addr          string
	Window        int
	CenterAzimuth float64
	Sectors       []Sector
}

// FocusConfig selects and configures the focus source.
type FocusConfig struct {
	Source      string
	Serial      SerialConfig
	Mock        MockConfig
	Orientation OrientationConfig
}

// PlaybackConfig holds external video player settings.
type PlaybackConfig struct {
	Enabled   bool
	Mode      string // "jurors" or "rotation"
	Player    string
	Args      []string
	LoopArgs  []string
	VideosDir string
	Section   int
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the libpq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// WebSocketConfig holds observer dashboard settings.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Host       string
	Port       string
	Protocol   string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// URL returns the server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// StorageConfig selects and configures the session recording backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	WebSocket WebSocketConfig
	Influx    InfluxConfig
}

// UploadConfig holds settings for uploading session exports.
type UploadConfig struct {
	Enabled bool
	URL     string
	Secret  string
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("CAPTIONER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// LoadDefaults sets defaults without reading a file, for tools that run
// without a config directory.
func LoadDefaults() {
	setDefaults()
	viper.SetEnvPrefix("CAPTIONER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 65432)
	viper.SetDefault("server.renderingMethod", 2)
	viper.SetDefault("server.captionsFile", "captions/captions.json")
	viper.SetDefault("server.qrFile", "")
	viper.SetDefault("server.statusFile", "status.json")
	viper.SetDefault("server.maxFrameSize", 1<<20)
	viper.SetDefault("server.waitForOperator", true)

	viper.SetDefault("viewer.addr", ":8080")
	viper.SetDefault("viewer.fps", 60)
	viper.SetDefault("viewer.indicatorOffset", "quarterTurn")
	viper.SetDefault("viewer.targetField", "activeTarget")
	viper.SetDefault("viewer.colors", "gold")
	viper.SetDefault("viewer.anchorHeight", 0.7)
	viper.SetDefault("viewer.rotateStep", 5.0)
	viper.SetDefault("viewer.keys", map[string]string{
		"1": "juror-a",
		"2": "juror-b",
		"3": "juror-c",
		"4": "jury-foreman",
	})
	viper.SetDefault("viewer.speakers", []string{"juror-a", "juror-b", "juror-c", "jury-foreman"})
	viper.SetDefault("viewer.sendQueueSize", 256)

	viper.SetDefault("focus.source", "mock")
	viper.SetDefault("focus.serial.port", "/dev/ttyACM0")
	viper.SetDefault("focus.serial.baudRate", 9600)
	viper.SetDefault("focus.mock.minInterval", "500ms")
	viper.SetDefault("focus.mock.maxInterval", "4500ms")
	viper.SetDefault("focus.mock.seed", 0)
	viper.SetDefault("focus.orientation.addr", ":65433")
	viper.SetDefault("focus.orientation.window", 3000)
	viper.SetDefault("focus.orientation.centerAzimuth", 180.0)
	viper.SetDefault("focus.orientation.sectors", []map[string]any{
		{"juror": "juror-a", "from": -60.0, "to": -30.0},
		{"juror": "juror-b", "from": -30.0, "to": 0.0},
		{"juror": "juror-c", "from": 0.0, "to": 30.0},
		{"juror": "jury-foreman", "from": 30.0, "to": 60.0},
	})

	viper.SetDefault("playback.enabled", false)
	viper.SetDefault("playback.player", "mpv")
	viper.SetDefault("playback.args", []string{"--no-terminal", "--fullscreen"})
	viper.SetDefault("playback.videosDir", "./videos")
	viper.SetDefault("playback.mode", "jurors")
	viper.SetDefault("playback.loopArgs", []string{"--loop-file=inf"})
	viper.SetDefault("playback.section", 0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/captioner.db")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "captioner")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "captioner")
	viper.SetDefault("influx.bucket", "sessions")
	viper.SetDefault("influx.backupPath", "./recordings/influx_backup.lp.gz")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.secret", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "captioner")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Watch calls onChange with the fresh log level whenever the config file
// is rewritten.
func Watch(onChange func(logLevel string)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(viper.GetString("logLevel"))
	})
	viper.WatchConfig()
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

// GetServerConfig returns the caption server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Host:            viper.GetString("server.host"),
		Port:            viper.GetInt("server.port"),
		RenderingMethod: viper.GetInt("server.renderingMethod"),
		CaptionsFile:    viper.GetString("server.captionsFile"),
		QRFile:          viper.GetString("server.qrFile"),
		StatusFile:      viper.GetString("server.statusFile"),
		MaxFrameSize:    viper.GetInt("server.maxFrameSize"),
		WaitForOperator: viper.GetBool("server.waitForOperator"),
	}
}

// GetViewerConfig returns the viewer settings.
func GetViewerConfig() ViewerConfig {
	return ViewerConfig{
		Addr:            viper.GetString("viewer.addr"),
		FPS:             viper.GetInt("viewer.fps"),
		IndicatorOffset: viper.GetString("viewer.indicatorOffset"),
		TargetField:     viper.GetString("viewer.targetField"),
		Colors:          viper.GetString("viewer.colors"),
		AnchorHeight:    viper.GetFloat64("viewer.anchorHeight"),
		RotateStep:      viper.GetFloat64("viewer.rotateStep"),
		Keys:            viper.GetStringMapString("viewer.keys"),
		Speakers:        viper.GetStringSlice("viewer.speakers"),
		SendQueueSize:   viper.GetInt("viewer.sendQueueSize"),
	}
}

// GetFocusConfig returns the focus source settings.
func GetFocusConfig() (FocusConfig, error) {
	var sectors []Sector
	if err := viper.UnmarshalKey("focus.orientation.sectors", &sectors); err != nil {
		return FocusConfig{}, fmt.Errorf("decoding focus.orientation.sectors: %w", err)
	}
	return FocusConfig{
		Source: viper.GetString("focus.source"),
		Serial: SerialConfig{
			Port:     viper.GetString("focus.serial.port"),
			BaudRate: viper.GetInt("focus.serial.baudRate"),
		},
		Mock: MockConfig{
			MinInterval: viper.GetDuration("focus.mock.minInterval"),
			MaxInterval: viper.GetDuration("focus.mock.maxInterval"),
			Seed:        viper.GetInt64("focus.mock.seed"),
		},
		Orientation: OrientationConfig{
			Addr:          viper.GetString("focus.orientation.addr"),
			Window:        viper.GetInt("focus.orientation.window"),
			CenterAzimuth: viper.GetFloat64("focus.orientation.centerAzimuth"),
			Sectors:       sectors,
		},
	}, nil
}

// GetPlaybackConfig returns the video player settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Enabled:   viper.GetBool("playback.enabled"),
		Mode:      viper.GetString("playback.mode"),
		Player:    viper.GetString("playback.player"),
		Args:      viper.GetStringSlice("playback.args"),
		LoopArgs:  viper.GetStringSlice("playback.loopArgs"),
		VideosDir: viper.GetString("playback.videosDir"),
		Section:   viper.GetInt("playback.section"),
	}
}

// GetStorageConfig returns the session recording settings.
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
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
		Influx: InfluxConfig{
			Host:       viper.GetString("influx.host"),
			Port:       viper.GetString("influx.port"),
			Protocol:   viper.GetString("influx.protocol"),
			Token:      viper.GetString("influx.token"),
			Org:        viper.GetString("influx.org"),
			Bucket:     viper.GetString("influx.bucket"),
			BackupPath: viper.GetString("influx.backupPath"),
		},
	}
}

// GetUploadConfig returns the session upload settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		Secret:  viper.GetString("upload.secret"),
	}
}

// GetGraylogConfig returns the GELF shipping settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
