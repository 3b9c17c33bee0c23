package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Parking    ParkingConfig    `yaml:"parking"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the operator alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size" envconfig:"WORKER_POOL_SIZE"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Alerts are disabled when the keys are empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" envconfig:"PUSH_SUBJECT"`
	TTL        int    `yaml:"ttl" envconfig:"PUSH_TTL"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port" envconfig:"PORT"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec" envconfig:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" envconfig:"CACHE_TTL_SECONDS"`
	CORSOrigins     []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" envconfig:"DB_DRIVER"`
	DSN                    string `yaml:"dsn" envconfig:"DB_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" envconfig:"DB_CONN_MAX_LIFETIME_MINUTES"`
}

// MQTTConfig holds the broker connection and topic layout.
type MQTTConfig struct {
	Enabled  bool        `yaml:"enabled" envconfig:"MQTT_ENABLED"`
	Broker   string      `yaml:"broker" envconfig:"MQTT_BROKER"`
	ClientID string      `yaml:"client_id" envconfig:"MQTT_CLIENT_ID"`
	Username string      `yaml:"username" envconfig:"MQTT_USERNAME"`
	Password string      `yaml:"password" envconfig:"MQTT_PASSWORD"`
	QoS      *byte       `yaml:"qos" envconfig:"MQTT_QOS"`
	Topics   TopicConfig `yaml:"topics"`
}

// PublishQoS is the QoS used for every publish. Unset means at-least-once.
func (m MQTTConfig) PublishQoS() byte {
	if m.QoS == nil {
		return 1
	}
	return *m.QoS
}

// TopicConfig names every topic the backend subscribes or publishes to.
type TopicConfig struct {
	CarArrival        string `yaml:"car_arrival"`
	MotorcycleArrival string `yaml:"motorcycle_arrival"`
	Departure         string `yaml:"departure"`
	OccupancyPrefix   string `yaml:"occupancy_prefix"`
	BarrierControl    string `yaml:"barrier_control"`
	DisplayStatus     string `yaml:"display_status"`
}

// ParkingConfig holds the business rules of the lot.
type ParkingConfig struct {
	GraceMinutes             int               `yaml:"grace_minutes" envconfig:"GRACE_MINUTES"`
	SweepIntervalSeconds     int               `yaml:"sweep_interval_seconds" envconfig:"SWEEP_INTERVAL_SECONDS"`
	SweepInterval            time.Duration     `yaml:"-" ignored:"true"`
	BroadcastIntervalSeconds int               `yaml:"broadcast_interval_seconds" envconfig:"BROADCAST_INTERVAL_SECONDS"`
	BroadcastInterval        time.Duration     `yaml:"-" ignored:"true"`
	CarClass                 string            `yaml:"car_class"`
	MotorcycleClass          string            `yaml:"motorcycle_class"`
	Classes                  map[string]string `yaml:"classes"` // cubicle name prefix -> vehicle class
	Cubicles                 []string          `yaml:"cubicles"`
	DefaultTariffs           []TariffConfig    `yaml:"default_tariffs"`
}

// TariffConfig seeds a tariff row when none exists for the class.
type TariffConfig struct {
	VehicleClass   string `yaml:"vehicle_class"`
	FirstHour      int64  `yaml:"first_hour"`
	SubsequentHour int64  `yaml:"subsequent_hour"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" envconfig:"LOG_PRETTY"`
}

// Load reads the configuration from the given path, then applies PARKING_* environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	// Sections are processed one by one so variables stay flat (PARKING_PORT,
	// PARKING_DB_DSN) instead of nesting the section name.
	sections := []any{&cfg.Server, &cfg.Database, &cfg.MQTT, &cfg.Parking, &cfg.Push, &cfg.WorkerPool, &cfg.Log}
	for _, section := range sections {
		if err := envconfig.Process("PARKING", section); err != nil {
			return nil, fmt.Errorf("failed to process env overrides: %w", err)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with the value the lot ran with originally.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "parking-backend"
	}
	if cfg.MQTT.QoS == nil || *cfg.MQTT.QoS > 2 {
		qos := byte(1)
		cfg.MQTT.QoS = &qos
	}
	t := &cfg.MQTT.Topics
	if t.CarArrival == "" {
		t.CarArrival = "parqueadero/entrada/carro"
	}
	if t.Departure == "" {
		t.Departure = "parqueadero/salida/carro"
	}
	if t.OccupancyPrefix == "" {
		t.OccupancyPrefix = "parqueadero/ubicacion"
	}
	if t.BarrierControl == "" {
		t.BarrierControl = "parqueadero/control/talanquera"
	}
	if t.DisplayStatus == "" {
		t.DisplayStatus = "parqueadero/display/estado_general"
	}

	p := &cfg.Parking
	if p.GraceMinutes < 0 {
		p.GraceMinutes = 0
	}
	if p.SweepIntervalSeconds <= 0 {
		p.SweepIntervalSeconds = 90
	}
	p.SweepInterval = time.Duration(p.SweepIntervalSeconds) * time.Second
	if p.BroadcastIntervalSeconds <= 0 {
		p.BroadcastIntervalSeconds = 5
	}
	p.BroadcastInterval = time.Duration(p.BroadcastIntervalSeconds) * time.Second
	if p.CarClass == "" {
		p.CarClass = "CARRO"
	}
	if p.MotorcycleClass == "" {
		p.MotorcycleClass = "MOTO"
	}
	if len(p.Classes) == 0 {
		p.Classes = map[string]string{"A": p.CarClass, "B": p.MotorcycleClass}
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Warn().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
