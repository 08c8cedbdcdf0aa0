package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Prediction policy names accepted in LagCompConfig.PredictionPolicy.
const (
	PredictionRecompute          = "recompute"
	PredictionTrustClientClamped = "trust_client_clamped"
)

// Damage policy names accepted in LagCompConfig.DamagePolicy.
const (
	DamageServerAuthoritative = "server_authoritative"
	DamageTrustClient         = "trust_client"
)

// LagCompConfig contains the rewind tunables
type LagCompConfig struct {
	// History
	MaxSavedPositionAge float64 `yaml:"max_saved_position_age"` // Seconds of pose history kept per entity
	HistoryRetention    float64 `yaml:"history_retention"`      // Seconds a despawned entity's history survives

	// Prediction time
	MaxPingMs     float64 `yaml:"max_ping_ms"`     // Ceiling on the ping fed into the estimate
	FudgeFactorMs float64 `yaml:"fudge_factor_ms"` // Subtracted from the tracked ping before clamping
	SecondsPerMs  float64 `yaml:"seconds_per_ms"`  // 0.001 = full RTT rewind, 0.0005 = half RTT

	// Policies
	PredictionPolicy string `yaml:"prediction_policy"`
	DamagePolicy     string `yaml:"damage_policy"`
}

// ServerConfig contains game server settings
type ServerConfig struct {
	Name           string  `yaml:"name"`
	TickRate       int     `yaml:"tick_rate"`
	MaxPlayers     int     `yaml:"max_players"`
	PingIntervalMs int     `yaml:"ping_interval_ms"`
	MoveSpeed      float64 `yaml:"move_speed"` // World units per second

	// Weapon
	Damage            int     `yaml:"damage"`
	MaxHealth         int     `yaml:"max_health"`
	TraceRange        float64 `yaml:"trace_range"`         // Traces longer than this are shortened
	MaxMuzzleDistance float64 `yaml:"max_muzzle_distance"` // Trace start must lie this close to the shooter
}

// CollisionConfig contains the collision scene layout. CellSize and the
// arena size are TMX pixels; heights, extents and the park position are
// world units.
type CollisionConfig struct {
	CellSize        int        `yaml:"cell_size"`       // Broadphase cell edge
	UnitsPerPixel   float64    `yaml:"units_per_pixel"` // Scale from TMX pixels to world units
	WallHeight      float64    `yaml:"wall_height"`
	BodyHalfExtents [3]float64 `yaml:"body_half_extents"`
	ParkPosition    [3]float64 `yaml:"park_position"`

	// Used when no level is loaded
	ArenaWidth  float64 `yaml:"arena_width"`
	ArenaHeight float64 `yaml:"arena_height"`
}

// AuditConfig contains the reconciliation audit log settings
type AuditConfig struct {
	Path             string `yaml:"path"` // Empty disables the audit log
	QueueSize        int    `yaml:"queue_size"`
	RecordConsistent bool   `yaml:"record_consistent"` // Also store confirmed hits and misses
}

// Config holds every section; it is the shape of the YAML file.
type Config struct {
	LagComp   LagCompConfig   `yaml:"lag_compensation"`
	Server    ServerConfig    `yaml:"server"`
	Collision CollisionConfig `yaml:"collision"`
	Audit     AuditConfig     `yaml:"audit"`
}

// Global configuration instances
var C *Config
var LagComp LagCompConfig
var Server ServerConfig
var Collision CollisionConfig
var Audit AuditConfig

func init() {
	Apply(Default())
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LagComp: LagCompConfig{
			MaxSavedPositionAge: 1.0,
			HistoryRetention:    1.0,

			MaxPingMs:     200,
			FudgeFactorMs: 0,
			SecondsPerMs:  0.001,

			PredictionPolicy: PredictionRecompute,
			DamagePolicy:     DamageServerAuthoritative,
		},
		Server: ServerConfig{
			Name:           "Rewind Server",
			TickRate:       30,
			MaxPlayers:     16,
			PingIntervalMs: 1000,
			MoveSpeed:      600,

			Damage:            25,
			MaxHealth:         100,
			TraceRange:        10000,
			MaxMuzzleDistance: 250,
		},
		Collision: CollisionConfig{
			CellSize:        32,
			UnitsPerPixel:   4,
			WallHeight:      400,
			BodyHalfExtents: [3]float64{33, 33, 96},
			ParkPosition:    [3]float64{5000, 5000, -100000},

			ArenaWidth:  4096,
			ArenaHeight: 4096,
		},
		Audit: AuditConfig{
			QueueSize: 4096,
		},
	}
}

// Apply installs c as the active configuration.
func Apply(c *Config) {
	C = c
	LagComp = c.LagComp
	Server = c.Server
	Collision = c.Collision
	Audit = c.Audit
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.LagComp.MaxSavedPositionAge <= 0:
		return fmt.Errorf("%w: max_saved_position_age must be positive", ErrInvalid)
	case c.LagComp.HistoryRetention < 0:
		return fmt.Errorf("%w: history_retention must not be negative", ErrInvalid)
	case c.LagComp.MaxPingMs < 0:
		return fmt.Errorf("%w: max_ping_ms must not be negative", ErrInvalid)
	case c.LagComp.SecondsPerMs <= 0:
		return fmt.Errorf("%w: seconds_per_ms must be positive", ErrInvalid)
	case c.Server.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive", ErrInvalid)
	case c.Server.PingIntervalMs <= 0:
		return fmt.Errorf("%w: ping_interval_ms must be positive", ErrInvalid)
	case c.Collision.CellSize <= 0:
		return fmt.Errorf("%w: cell_size must be positive", ErrInvalid)
	case c.Collision.UnitsPerPixel <= 0:
		return fmt.Errorf("%w: units_per_pixel must be positive", ErrInvalid)
	}

	switch c.LagComp.PredictionPolicy {
	case PredictionRecompute, PredictionTrustClientClamped:
	default:
		return fmt.Errorf("%w: unknown prediction_policy %q", ErrInvalid, c.LagComp.PredictionPolicy)
	}
	switch c.LagComp.DamagePolicy {
	case DamageServerAuthoritative, DamageTrustClient:
	default:
		return fmt.Errorf("%w: unknown damage_policy %q", ErrInvalid, c.LagComp.DamagePolicy)
	}
	return nil
}

// PingInterval returns ServerConfig.PingIntervalMs as a duration.
func (s ServerConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMs) * time.Millisecond
}

// MaxRewind is the deepest rewind the estimator can produce.
func (l LagCompConfig) MaxRewind() time.Duration {
	return time.Duration(l.MaxPingMs * l.SecondsPerMs * float64(time.Second))
}
