package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
	Geo     GeoConfig     `yaml:"geo" mapstructure:"geo"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Mail    MailConfig    `yaml:"mail" mapstructure:"mail"`
	Publish PublishConfig `yaml:"publish" mapstructure:"publish"`
	Cycle   CycleConfig   `yaml:"cycle" mapstructure:"cycle"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the remote record-store backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"` // firestore | sqlite | postgres
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	BaseURL              string `yaml:"base_url" mapstructure:"base_url"`
	Headless             bool   `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs       int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	RelatedTimeoutSecs   int    `yaml:"related_timeout_secs" mapstructure:"related_timeout_secs"`
	SnapshotIntervalSecs int    `yaml:"snapshot_interval_secs" mapstructure:"snapshot_interval_secs"`
	SnapshotDir          string `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// LedgerConfig holds the local file paths owned by the reconciliation cycle.
type LedgerConfig struct {
	ScrapedPath    string `yaml:"scraped_path" mapstructure:"scraped_path"`
	PendingPath    string `yaml:"pending_path" mapstructure:"pending_path"`
	SessionsPath   string `yaml:"sessions_path" mapstructure:"sessions_path"`
	SentAlertsPath string `yaml:"sent_alerts_path" mapstructure:"sent_alerts_path"`
	PublicDir      string `yaml:"public_dir" mapstructure:"public_dir"`
}

// GeoConfig configures location resolution and alert targeting.
type GeoConfig struct {
	LocationsPath string  `yaml:"locations_path" mapstructure:"locations_path"`
	RadiusFeet    float64 `yaml:"radius_feet" mapstructure:"radius_feet"`
}

// GeocodeConfig configures the lot-coordinate backfill client.
type GeocodeConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Hint          string  `yaml:"hint" mapstructure:"hint"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	NotFoundCSV   string  `yaml:"not_found_csv" mapstructure:"not_found_csv"`
}

// MailConfig holds SMTP settings for citation alerts.
type MailConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// PublishConfig holds FTP settings for pushing the public citations list.
type PublishConfig struct {
	URL        string `yaml:"url" mapstructure:"url"` // ftp://host[:port]/path
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
	RemoteFile string `yaml:"remote_file" mapstructure:"remote_file"`
}

// CycleConfig tunes reconciliation-cycle behavior.
type CycleConfig struct {
	SubmissionGraceHours int `yaml:"submission_grace_hours" mapstructure:"submission_grace_hours"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CITATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "firestore")
	v.SetDefault("store.credentials_file", "cred.json")
	v.SetDefault("browser.base_url", "https://ucsc.aimsparking.com/tickets/")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_secs", 6)
	v.SetDefault("browser.related_timeout_secs", 2)
	v.SetDefault("browser.snapshot_interval_secs", 5)
	v.SetDefault("browser.snapshot_dir", "screenshots")
	v.SetDefault("ledger.scraped_path", "scraped.txt")
	v.SetDefault("ledger.pending_path", "main.txt")
	v.SetDefault("ledger.sessions_path", "sessions.txt")
	v.SetDefault("ledger.sent_alerts_path", "sent_alerts.txt")
	v.SetDefault("ledger.public_dir", "public")
	v.SetDefault("geo.locations_path", "ucsclots.json")
	v.SetDefault("geo.radius_feet", 15840)
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/place/findplacefromtext/json")
	v.SetDefault("geocode.hint", "uc santa cruz ca")
	v.SetDefault("geocode.rate_per_sec", 10)
	v.SetDefault("geocode.max_concurrent", 4)
	v.SetDefault("geocode.not_found_csv", "not_found.csv")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 465)
	v.SetDefault("publish.remote_file", "citations.txt")
	v.SetDefault("cycle.submission_grace_hours", 72)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
