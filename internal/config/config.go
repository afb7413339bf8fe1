// Package config loads and validates the simulator's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/computing"
	"github.com/signalsfoundry/constellation-testbed/internal/constellation"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/observability"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/topology"
)

// Manual is the StepInterval that disables automatic stepping.
const Manual = -1

// SimulationConfig controls the clock and the tick pipeline.
type SimulationConfig struct {
	Start time.Time `yaml:"start"`
	// StepLength is the simulated time advanced by one step before the
	// multiplier is applied.
	StepLength     time.Duration `yaml:"step_length"`
	StepMultiplier float64       `yaml:"step_multiplier"`
	// StepInterval is the wall-clock seconds between steps. 0 runs as fast
	// as possible and -1 waits for manual steps.
	StepInterval    float64 `yaml:"step_interval"`
	UsePreRouteCalc bool    `yaml:"use_pre_route_calc"`
	MaxCpuCores     int     `yaml:"max_cpu_cores"`
	// RescheduleEvery runs deployment reschedule checks every n ticks; 0
	// disables them.
	RescheduleEvery int    `yaml:"reschedule_every"`
	Seed            uint64 `yaml:"seed"`
}

// Step is the simulated time advanced per tick.
func (s SimulationConfig) Step() time.Duration {
	return time.Duration(float64(s.StepLength) * s.StepMultiplier)
}

// Interval is the wall-clock spacing of ticks. It is negative in manual mode.
func (s SimulationConfig) Interval() time.Duration {
	if s.StepInterval < 0 {
		return Manual
	}
	return time.Duration(s.StepInterval * float64(time.Second))
}

type ISLConfig struct {
	Protocol    string  `yaml:"protocol"`
	Neighbours  int     `yaml:"neighbours"`
	MaxDistance float64 `yaml:"max_distance"`
	MaxDegree   int     `yaml:"max_degree"`
}

type RouterConfig struct {
	Protocol string        `yaml:"protocol"`
	RouteTTL time.Duration `yaml:"route_ttl"`
}

type TierConfig struct {
	Cpu    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
}

type ComputingConfig struct {
	Edge  TierConfig `yaml:"edge"`
	Cloud TierConfig `yaml:"cloud"`
}

// ConstellationConfig selects the satellite source. A TLE file takes
// precedence over the Walker shell.
type ConstellationConfig struct {
	TLEFile string                `yaml:"tle_file"`
	Walker  *constellation.Walker `yaml:"walker"`
}

// GroundStationsConfig lists ground stations inline, from a file, or from
// the built-in catalogue when both are empty and Defaults is set.
type GroundStationsConfig struct {
	Defaults bool                          `yaml:"defaults"`
	File     string                        `yaml:"file"`
	Stations []constellation.GroundStation `yaml:"stations"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MetricsConfig struct {
	// Addr is the listen address of the status API; empty disables it.
	Addr string `yaml:"addr"`
}

// Config is the root configuration document.
type Config struct {
	Simulation          SimulationConfig     `yaml:"simulation"`
	Constellation       ConstellationConfig  `yaml:"constellation"`
	InterSatelliteLinks ISLConfig            `yaml:"inter_satellite_links"`
	Router              RouterConfig         `yaml:"router"`
	Computing           ComputingConfig      `yaml:"computing"`
	GroundStations      GroundStationsConfig `yaml:"ground_stations"`
	Logging             LoggingConfig        `yaml:"logging"`
	Tracing             TracingConfig        `yaml:"tracing"`
	Metrics             MetricsConfig        `yaml:"metrics"`
}

// Default returns a runnable configuration: a small Walker shell with the
// built-in ground stations, MST links and Dijkstra routing.
func Default() *Config {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Config{
		Simulation: SimulationConfig{
			Start:           start,
			StepLength:      time.Second,
			StepMultiplier:  1,
			StepInterval:    1,
			UsePreRouteCalc: true,
			MaxCpuCores:     4,
			RescheduleEvery: 10,
			Seed:            1,
		},
		Constellation: ConstellationConfig{
			Walker: &constellation.Walker{
				Planes: 12, PerPlane: 20, Phasing: 1,
				Altitude: 550_000, Inclination: 53, Epoch: start,
			},
		},
		InterSatelliteLinks: ISLConfig{Protocol: "mst_smart_loop", Neighbours: 4, MaxDistance: core.MaxISLDistance, MaxDegree: 4},
		Router:              RouterConfig{Protocol: "dijkstra", RouteTTL: routing.DefaultRouteTTL},
		Computing: ComputingConfig{
			Edge:  TierConfig{Cpu: 16, Memory: 32},
			Cloud: TierConfig{Cpu: 512, Memory: 2048},
		},
		GroundStations: GroundStationsConfig{Defaults: true},
		Logging:        LoggingConfig{Level: "info", Format: "console"},
		Tracing:        TracingConfig{Exporter: "stdout", SampleRatio: 1},
	}
}

// Load reads, parses and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays data on Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", core.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and joins the problems it finds.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrConfiguration}, args...)...))
	}

	s := c.Simulation
	if s.StepLength <= 0 {
		fail("simulation.step_length must be positive, got %v", s.StepLength)
	}
	if s.StepMultiplier <= 0 {
		fail("simulation.step_multiplier must be positive, got %v", s.StepMultiplier)
	}
	if s.StepInterval < 0 && s.StepInterval != Manual {
		fail("simulation.step_interval must be >= 0 or %d, got %v", Manual, s.StepInterval)
	}
	if s.MaxCpuCores <= 0 {
		fail("simulation.max_cpu_cores must be positive, got %d", s.MaxCpuCores)
	}
	if s.RescheduleEvery < 0 {
		fail("simulation.reschedule_every must not be negative, got %d", s.RescheduleEvery)
	}

	if c.Constellation.TLEFile == "" {
		if c.Constellation.Walker == nil {
			fail("constellation needs a tle_file or a walker shell")
		} else if err := c.Constellation.Walker.Validate(); err != nil {
			fail("constellation.walker: %v", err)
		}
	}

	if !slices.Contains(topology.Names(), strings.ToLower(c.InterSatelliteLinks.Protocol)) {
		fail("inter_satellite_links.protocol %q, want one of %s",
			c.InterSatelliteLinks.Protocol, strings.Join(topology.Names(), ", "))
	}
	if !slices.Contains(routing.Names(), strings.ToLower(c.Router.Protocol)) {
		fail("router.protocol %q, want one of %s", c.Router.Protocol, strings.Join(routing.Names(), ", "))
	}
	if c.Router.RouteTTL < 0 {
		fail("router.route_ttl must not be negative, got %v", c.Router.RouteTTL)
	}

	for name, tier := range map[string]TierConfig{"edge": c.Computing.Edge, "cloud": c.Computing.Cloud} {
		if tier.Cpu < 0 || tier.Memory < 0 {
			fail("computing.%s capacity must not be negative", name)
		}
	}
	for _, g := range c.GroundStations.Stations {
		if err := g.Validate(); err != nil {
			fail("ground_stations: %v", err)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json", "text":
	default:
		fail("logging.format %q, want console, json or text", c.Logging.Format)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		fail("tracing.exporter %q, want stdout or otlp", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		fail("tracing.sample_ratio %v out of [0, 1]", c.Tracing.SampleRatio)
	}
	return errors.Join(errs...)
}

// Topology returns the inter-satellite link protocol settings.
func (c *Config) Topology() topology.Config {
	return topology.Config{
		Protocol:    c.InterSatelliteLinks.Protocol,
		Neighbours:  c.InterSatelliteLinks.Neighbours,
		MaxDistance: c.InterSatelliteLinks.MaxDistance,
		MaxDegree:   c.InterSatelliteLinks.MaxDegree,
		Workers:     c.Simulation.MaxCpuCores,
	}
}

// Routing returns the router settings.
func (c *Config) Routing() routing.Config {
	return routing.Config{Protocol: c.Router.Protocol, RouteTTL: c.Router.RouteTTL}
}

// Ledgers returns the computing builder for the configured tiers.
func (c *Config) Ledgers() (*computing.Builder, error) {
	return computing.NewBuilder(
		computing.Tier{Class: computing.ClassEdge, Cpu: c.Computing.Edge.Cpu, Memory: c.Computing.Edge.Memory},
		computing.Tier{Class: computing.ClassCloud, Cpu: c.Computing.Cloud.Cpu, Memory: c.Computing.Cloud.Memory},
	)
}

// Satellites loads the configured satellite source.
func (c *Config) Satellites() ([]constellation.Satellite, error) {
	if c.Constellation.TLEFile != "" {
		recs, err := constellation.LoadTLE(c.Constellation.TLEFile)
		if err != nil {
			return nil, err
		}
		return constellation.FromTLE(recs)
	}
	return c.Constellation.Walker.Satellites(), nil
}

// Stations resolves the ground-station list. Inline stations come first,
// then the file, then the built-in catalogue when nothing else is given.
func (c *Config) Stations() ([]constellation.GroundStation, error) {
	out := slices.Clone(c.GroundStations.Stations)
	if c.GroundStations.File != "" {
		f, err := os.Open(c.GroundStations.File)
		if err != nil {
			return nil, fmt.Errorf("open ground stations: %w", err)
		}
		defer f.Close()
		more, err := constellation.ReadGroundStations(f)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	if len(out) == 0 && c.GroundStations.Defaults {
		out = constellation.DefaultGroundStations()
	}
	return out, nil
}

// Logger returns the logging settings.
func (c *Config) Logger() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format, File: c.Logging.File}
}

// Tracer returns the tracing settings. The scenario sizes are filled in
// from the Walker shell and the resolved ground stations; TLE constellations
// leave the satellite count unset.
func (c *Config) Tracer() observability.TracingConfig {
	scenario := observability.Scenario{
		ISLProtocol:  c.InterSatelliteLinks.Protocol,
		Router:       c.Router.Protocol,
		PreRouteCalc: c.Simulation.UsePreRouteCalc,
	}
	if w := c.Constellation.Walker; w != nil && c.Constellation.TLEFile == "" {
		scenario.Satellites = w.Planes * w.PerPlane
	}
	if stations, err := c.Stations(); err == nil {
		scenario.GroundStations = len(stations)
	}
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
		Scenario:    scenario,
	}
}
