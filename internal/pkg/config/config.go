package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Geozone   GeozoneConfig   `mapstructure:"geozone"`
	Map       MapConfig       `mapstructure:"map"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Fence     FenceConfig     `mapstructure:"fence"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
	// Encoding of published events: "json" or "proto".
	Encoding string `mapstructure:"encoding"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
	// LocalSize bounds the in-process cache used when valkey is unreachable.
	LocalSize int `mapstructure:"local_size"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// GeozoneConfig carries the geometry constants of the geofence model.
type GeozoneConfig struct {
	MinRadius     float64 `mapstructure:"min_radius"`
	MaxRadius     float64 `mapstructure:"max_radius"`
	DefaultRadius float64 `mapstructure:"default_radius"`
	EarthRadius   float64 `mapstructure:"earth_radius"`
	CircleStep    float64 `mapstructure:"circle_step"`
}

// Policy returns the radius policy built from the configured limits.
func (g GeozoneConfig) Policy() domain.RadiusPolicy {
	return domain.RadiusPolicy{Min: g.MinRadius, Max: g.MaxRadius, Default: g.DefaultRadius}
}

// Sphere returns the earth model used for projection and distances.
func (g GeozoneConfig) Sphere() geospatial.Sphere {
	return geospatial.NewSphere(g.EarthRadius)
}

type MapConfig struct {
	Provider      string                   `mapstructure:"provider"`
	Width         int                      `mapstructure:"width"`
	Height        int                      `mapstructure:"height"`
	DefaultCenter domain.GeoPoint          `mapstructure:"default_center"`
	DefaultZoom   int                      `mapstructure:"default_zoom"`
	Profiles      []geospatial.ZoomProfile `mapstructure:"profiles"`
}

type ReplayConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
}

// Interval returns the default delay between replay frames.
func (r ReplayConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMS) * time.Millisecond
}

type GeocodeConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// FenceConfig selects where geofence crossings are detected. Inline runs
// the monitor inside the API so ingest answers with the crossings; otherwise
// cmd/fencewatch consumes the published positions. Running both would
// report every crossing twice.
type FenceConfig struct {
	Inline bool `mapstructure:"inline"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRACKZONE_DATABASE_HOST → database.host
	v.SetEnvPrefix("TRACKZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "trackzone")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "trackzone")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.encoding", "json")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.local_size", 4096)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "geozone-import")

	p := domain.DefaultRadiusPolicy
	v.SetDefault("geozone.min_radius", p.Min)
	v.SetDefault("geozone.max_radius", p.Max)
	v.SetDefault("geozone.default_radius", p.Default)
	v.SetDefault("geozone.earth_radius", geospatial.DefaultEarthRadiusMeters)
	v.SetDefault("geozone.circle_step", geospatial.DefaultCircleStep)

	v.SetDefault("map.provider", geospatial.TileMapProfile.Name)
	v.SetDefault("map.width", geospatial.DefaultViewportWidth)
	v.SetDefault("map.height", geospatial.DefaultViewportHeight)
	v.SetDefault("map.default_center.lat", 39.0)
	v.SetDefault("map.default_center.lon", -96.0)
	v.SetDefault("map.default_zoom", 4)

	v.SetDefault("replay.interval_ms", 1000)

	v.SetDefault("geocode.endpoint", "http://localhost:8081/track/Track")
	v.SetDefault("geocode.timeout", 5*time.Second)
	v.SetDefault("geocode.rate_per_sec", 5.0)
	v.SetDefault("geocode.cache_ttl", 24*time.Hour)

	v.SetDefault("fence.inline", false)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.NATS.Encoding != "json" && c.NATS.Encoding != "proto" {
		errs = append(errs, fmt.Sprintf("nats.encoding must be json or proto, got %q", c.NATS.Encoding))
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	g := c.Geozone
	if g.MinRadius <= 0 {
		errs = append(errs, "geozone.min_radius must be positive")
	}
	if g.MaxRadius < g.MinRadius {
		errs = append(errs, fmt.Sprintf("geozone.max_radius (%v) must be >= min_radius (%v)", g.MaxRadius, g.MinRadius))
	}
	if g.DefaultRadius <= 0 {
		errs = append(errs, "geozone.default_radius must be positive")
	}
	if g.EarthRadius <= 0 {
		errs = append(errs, "geozone.earth_radius must be positive")
	}
	if g.CircleStep <= 0 || g.CircleStep > 360 {
		errs = append(errs, fmt.Sprintf("geozone.circle_step must be in (0, 360], got %v", g.CircleStep))
	}

	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		errs = append(errs, "map.width and map.height must be positive")
	}
	for _, p := range c.Map.Profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("map.profiles: %v", err))
		}
	}
	if !c.hasProfile(c.Map.Provider) {
		errs = append(errs, fmt.Sprintf("map.provider %q is not a known zoom profile", c.Map.Provider))
	}

	if c.Replay.IntervalMS <= 0 {
		errs = append(errs, "replay.interval_ms must be positive")
	}
	if c.Geocode.Endpoint == "" {
		errs = append(errs, "geocode.endpoint is required")
	}
	if c.Geocode.RatePerSec <= 0 {
		errs = append(errs, "geocode.rate_per_sec must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RegisterProfiles adds the configured zoom profiles to the registry.
func (c *Config) RegisterProfiles() error {
	for _, p := range c.Map.Profiles {
		if err := geospatial.RegisterProfile(p); err != nil {
			return fmt.Errorf("register profile %s: %w", p.Name, err)
		}
	}
	return nil
}

func (c *Config) hasProfile(name string) bool {
	if _, ok := geospatial.LookupProfile(name); ok {
		return true
	}
	for _, p := range c.Map.Profiles {
		if p.Name == name {
			return true
		}
	}
	return false
}
