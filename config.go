package bakery

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bakerykit/bakery/cluster"
	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/boltdb"
	"github.com/bakerykit/bakery/persistence/memory"
	"github.com/bakerykit/bakery/persistence/remote"
	"gopkg.in/yaml.v3"
)

// Topology is the strategy used to decide where instances are hosted.
type Topology string

const (
	// LocalTopology hosts every instance within a single process.
	LocalTopology Topology = "local"

	// ClusterShardedTopology spreads instances across the members of a
	// cluster.
	ClusterShardedTopology Topology = "cluster-sharded"
)

// Config is the runtime configuration.
type Config struct {
	Topology                Topology         `yaml:"topology"`
	ShardCount              int              `yaml:"shardCount"`
	RetentionCheckInterval  Duration         `yaml:"retentionCheckInterval"`
	IdleTimeout             Duration         `yaml:"idleTimeout"`
	SeedNodes               []string         `yaml:"seedNodes"`
	ListenAddress           string           `yaml:"listenAddress"`
	JournalInitTimeout      Duration         `yaml:"journalInitTimeout"`
	BootstrapTimeout        Duration         `yaml:"bootstrapTimeout"`
	LeaseDuration           Duration         `yaml:"leaseDuration"`
	Encryption              EncryptionConfig `yaml:"encryption"`
	FilteredIngredientNames []string         `yaml:"filteredIngredientNames"`
	Journal                 JournalConfig    `yaml:"journal"`
}

// EncryptionConfig configures the encryption of journal payloads.
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// JournalConfig describes the journal used by the runtime.
//
// At most one of Path, Address and Memory may be set. If none are set,
// DefaultPersistenceProvider is used.
type JournalConfig struct {
	// Path is the path of a BoltDB database file.
	Path string `yaml:"path"`

	// Address is the address of a journal server shared by a cluster.
	Address string `yaml:"address"`

	// Memory keeps the journal in memory.
	Memory bool `yaml:"memory"`

	// Name is the name of the journal. If it is empty, DefaultJournalName is
	// used.
	Name string `yaml:"name"`
}

// Duration is a time.Duration that is written in YAML using the notation
// accepted by time.ParseDuration().
//
// The value "none" is equivalent to zero.
type Duration time.Duration

// UnmarshalYAML decodes a duration from a YAML scalar.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}

	if strings.EqualFold(s, "none") {
		*d = 0
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}

	*d = Duration(v)
	return nil
}

// LoadConfig reads a YAML configuration from r.
//
// Unknown fields are rejected. Omitted fields take their default values. The
// result is validated before it is returned.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := Config{
		Topology:   LocalTopology,
		ShardCount: int(cluster.DefaultShardCount),
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("unable to parse configuration: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadConfigFile reads a YAML configuration from the file at the given path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	return LoadConfig(f)
}

// Validate returns a ConfigError if the configuration is invalid.
func (c Config) Validate() error {
	switch c.Topology {
	case "", LocalTopology:
	case ClusterShardedTopology:
		if err := c.validateCluster(); err != nil {
			return err
		}
	default:
		return ConfigError{
			Field:   "topology",
			Problem: fmt.Sprintf("unsupported topology '%s'", c.Topology),
		}
	}

	if c.ShardCount < 0 {
		return ConfigError{"shardCount", "shard count must be positive"}
	}

	for field, d := range map[string]Duration{
		"retentionCheckInterval": c.RetentionCheckInterval,
		"idleTimeout":            c.IdleTimeout,
		"journalInitTimeout":     c.JournalInitTimeout,
		"bootstrapTimeout":       c.BootstrapTimeout,
		"leaseDuration":          c.LeaseDuration,
	} {
		if d < 0 {
			return ConfigError{field, "duration must not be negative"}
		}
	}

	if c.Encryption.Enabled && c.Encryption.Secret == "" {
		return ConfigError{"encryption.secret", "encryption is enabled but no secret is configured"}
	}

	return c.Journal.validate()
}

func (c Config) validateCluster() error {
	if c.ShardCount <= 0 {
		return ConfigError{"shardCount", "shard count must be positive"}
	}

	if len(c.SeedNodes) == 0 {
		return ConfigError{"seedNodes", "a cluster requires at least one seed node"}
	}

	for _, addr := range c.SeedNodes {
		if err := validateAddress(addr); err != nil {
			return ConfigError{"seedNodes", err.Error()}
		}
	}

	if c.ListenAddress == "" {
		return ConfigError{"listenAddress", "a cluster member requires a listen address"}
	}

	if err := validateAddress(c.ListenAddress); err != nil {
		return ConfigError{"listenAddress", err.Error()}
	}

	return nil
}

func (c JournalConfig) validate() error {
	n := 0
	if c.Path != "" {
		n++
	}
	if c.Address != "" {
		n++
	}
	if c.Memory {
		n++
	}

	if n > 1 {
		return ConfigError{"journal", "only one of path, address or memory may be specified"}
	}

	if c.Address != "" {
		if err := validateAddress(c.Address); err != nil {
			return ConfigError{"journal.address", err.Error()}
		}
	}

	return nil
}

func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address '%s': %w", addr, err)
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid address '%s': invalid port", addr)
	}

	return nil
}

// deployment returns the deployment provider described by the configuration.
func (c Config) deployment(opts *runtimeOptions) (DeploymentProvider, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	retention := index.RetentionPolicy{
		CheckInterval: time.Duration(c.RetentionCheckInterval),
		IdleTimeout:   time.Duration(c.IdleTimeout),
	}

	policy, err := c.encryptionPolicy()
	if err != nil {
		return nil, err
	}

	provider := c.persistenceProvider(opts)

	if c.Topology != ClusterShardedTopology {
		return &LocalDeployment{
			Retention:   retention,
			Encryption:  policy,
			Persistence: provider,
		}, nil
	}

	if opts.PersistenceProvider == nil && c.Journal.Address == "" {
		return nil, ConfigError{"journal.address", "a cluster requires a shared journal"}
	}

	return &ClusterDeployment{
		Retention:          retention,
		Encryption:         policy,
		Persistence:        provider,
		ShardCount:         uint32(c.ShardCount),
		SeedNodes:          c.SeedNodes,
		ListenAddress:      c.ListenAddress,
		Listener:           opts.Listener,
		JournalInitTimeout: time.Duration(c.JournalInitTimeout),
		BootstrapTimeout:   time.Duration(c.BootstrapTimeout),
		LeaseDuration:      time.Duration(c.LeaseDuration),
		ServerOptions:      opts.ServerOptions,
		DialOptions:        opts.DialOptions,
	}, nil
}

// encryptionPolicy returns the encryption policy described by the
// configuration.
func (c Config) encryptionPolicy() (encryption.Policy, error) {
	if !c.Encryption.Enabled {
		return encryption.None, nil
	}

	p, err := encryption.NewSymmetric(c.Encryption.Secret)
	if err != nil {
		return nil, ConfigError{"encryption.secret", err.Error()}
	}

	return p, nil
}

// persistenceProvider returns the persistence provider used to open the
// journal.
func (c Config) persistenceProvider(opts *runtimeOptions) persistence.Provider {
	if opts.PersistenceProvider != nil {
		return opts.PersistenceProvider
	}

	return c.Journal.provider(opts)
}

// provider returns the persistence provider described by the configuration.
func (c JournalConfig) provider(opts *runtimeOptions) persistence.Provider {
	switch {
	case c.Path != "":
		return &boltdb.FileProvider{Path: c.Path}
	case c.Address != "":
		return &remote.Provider{
			Address:     c.Address,
			DialOptions: opts.DialOptions,
		}
	case c.Memory:
		return &memory.Provider{}
	default:
		return DefaultPersistenceProvider
	}
}
