// Package config loads and validates the specfleet site and service
// configuration. A deployment is described by one YAML file holding the
// service settings, the engine tunables and the site inventory (units,
// buildings, the spectrograph host). The file can be hot-reloaded.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/specfleet/specfleet/pkg/remote"
)

// Operating modes for the engine.
const (
	ModeProduction = "production"
	ModeDebug      = "debug"
)

// Config is the top-level specfleet configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Engine  EngineConfig  `yaml:"engine"`
	Sites   []Site        `yaml:"sites" validate:"required,min=1,dive"`
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	// Name identifies this deployment in logs and telemetry.
	Name string `yaml:"name"`

	// DataDir is the root of the plan areas (pending, completed, failed)
	// and the history database.
	DataDir string `yaml:"data_dir" validate:"required"`

	// PolicyDir holds the observing constraint policies.
	PolicyDir string `yaml:"policy_dir"`

	// ConditionsFile is the environment monitor's sample file. Empty
	// disables constraint gating on live conditions.
	ConditionsFile string `yaml:"conditions_file"`

	// ConditionsMaxAge refuses samples older than this. Zero accepts any.
	ConditionsMaxAge time.Duration `yaml:"conditions_max_age"`
}

// EngineConfig holds the orchestration tunables.
type EngineConfig struct {
	// Mode selects production or debug behavior. In debug mode
	// non-operational peers are tolerated during probing.
	Mode string `yaml:"mode" validate:"oneof=production debug"`

	// PollInterval is the cadence of the guiding and exposure polls.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// SpecDoneTimeout bounds the wait for the spectrograph exposure to
	// finish. Zero means wait indefinitely.
	SpecDoneTimeout time.Duration `yaml:"spec_done_timeout" validate:"min=0"`

	// UnitPort and SpecPort are the API ports of the peers.
	UnitPort int `yaml:"unit_port" validate:"gt=0,lte=65535"`
	SpecPort int `yaml:"spec_port" validate:"gt=0,lte=65535"`

	// BasePath is the API prefix on every peer.
	BasePath string `yaml:"base_path"`

	// RequestTimeout bounds a single remote call.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
}

// Building groups units within a site, addressable by name or index.
type Building struct {
	Names   []string `yaml:"names" validate:"required,min=1"`
	UnitIDs StrList  `yaml:"unit_ids" validate:"required"`

	// units is the normalized form of UnitIDs, filled at load time.
	units []string
}

// Units returns the normalized unit ids of the building.
func (b *Building) Units() []string {
	return b.units
}

// Site describes one observatory site and its deployed fleet.
type Site struct {
	Name    string `yaml:"name" validate:"required"`
	Project string `yaml:"project" validate:"required"`
	Domain  string `yaml:"domain"`

	// Local marks the site the service itself runs at. Specifiers
	// without an explicit site resolve against the local site.
	Local bool `yaml:"local"`

	// SpecHost is the hostname of the site's shared spectrograph.
	SpecHost string `yaml:"spec_host"`

	Location string `yaml:"location"`

	DeployedUnits      StrList    `yaml:"deployed_units"`
	PlannedUnits       StrList    `yaml:"planned_units"`
	UnitsInMaintenance StrList    `yaml:"units_in_maintenance"`
	Buildings          []Building `yaml:"buildings" validate:"dive"`
}

// StrList accepts either a YAML scalar or a sequence of scalars, so
// "1-5", "mast03" and ["1", "3-4"] all decode.
type StrList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("unit list must be a scalar or a sequence, got %v", value.Kind)
	}
}

// Load reads, validates and normalizes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and normalizes configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for i := range cfg.Sites {
		if err := cfg.Sites[i].normalize(); err != nil {
			return nil, fmt.Errorf("site %s: %w", cfg.Sites[i].Name, err)
		}
	}

	if _, err := cfg.LocalSite(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "specfleet",
		},
		Engine: EngineConfig{
			Mode:            ModeProduction,
			PollInterval:    20 * time.Second,
			SpecDoneTimeout: 2 * time.Hour,
			UnitPort:        8000,
			SpecPort:        8000,
			BasePath:        "/api/v1",
			RequestTimeout:  20 * time.Second,
		},
	}
}

// Debug reports whether the engine runs in debug mode.
func (c *Config) Debug() bool {
	return c.Engine.Mode == ModeDebug
}

// LocalSite returns the site marked local, or the only site when there
// is exactly one.
func (c *Config) LocalSite() (*Site, error) {
	for i := range c.Sites {
		if c.Sites[i].Local {
			return &c.Sites[i], nil
		}
	}
	if len(c.Sites) == 1 {
		return &c.Sites[0], nil
	}
	return nil, fmt.Errorf("no site marked local among %d sites", len(c.Sites))
}

// SiteByName returns the named site.
func (c *Config) SiteByName(name string) (*Site, error) {
	for i := range c.Sites {
		if c.Sites[i].Name == name {
			return &c.Sites[i], nil
		}
	}
	return nil, fmt.Errorf("unknown site: %q", name)
}

// normalize expands unit specifiers into canonical unit ids.
func (s *Site) normalize() error {
	var err error
	if s.DeployedUnits, err = s.normalizeUnits(s.DeployedUnits); err != nil {
		return err
	}
	if s.PlannedUnits, err = s.normalizeUnits(s.PlannedUnits); err != nil {
		return err
	}
	if s.UnitsInMaintenance, err = s.normalizeUnits(s.UnitsInMaintenance); err != nil {
		return err
	}
	for i := range s.Buildings {
		units, err := s.normalizeUnits(s.Buildings[i].UnitIDs)
		if err != nil {
			return err
		}
		s.Buildings[i].units = units
	}
	return nil
}

// HasUnit reports whether the unit id belongs to the site's deployed fleet.
func (s *Site) HasUnit(unit string) bool {
	for _, u := range s.DeployedUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// UnitEndpoint builds the remote endpoint config for a deployed unit.
// The unit id doubles as its hostname within the site's domain.
func (c *Config) UnitEndpoint(site *Site, unit string) remote.Config {
	return remote.Config{
		Hostname: unit,
		Domain:   site.Domain,
		Port:     c.Engine.UnitPort,
		BasePath: c.Engine.BasePath,
		Timeout:  c.Engine.RequestTimeout,
	}
}

// SpecEndpoint builds the remote endpoint config for a site's spectrograph.
func (c *Config) SpecEndpoint(site *Site) (remote.Config, error) {
	if site.SpecHost == "" {
		return remote.Config{}, fmt.Errorf("site %s has no spec host", site.Name)
	}
	return remote.Config{
		Hostname: site.SpecHost,
		Domain:   site.Domain,
		Port:     c.Engine.SpecPort,
		BasePath: c.Engine.BasePath,
		Timeout:  c.Engine.RequestTimeout,
	}, nil
}
