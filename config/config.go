package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"escrowchain/core/runtime"
	"escrowchain/crypto"
)

// Storage backends understood by DBBackend.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	DBBackend   string `toml:"DBBackend"`
	GenesisFile string `toml:"GenesisFile"`
	Environment string `toml:"Environment"`
	// OperatorKeystorePath holds the node operator key. A development node
	// without a genesis file funds this account.
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	// Program ids in bech32 or 0x form; empty selects the built-in ids.
	EscrowProgramID string `toml:"EscrowProgramID"`
	TokenProgramID  string `toml:"TokenProgramID"`

	Rent      runtime.Rent `toml:"Rent"`
	Log       Log          `toml:"Log"`
	Telemetry Telemetry    `toml:"Telemetry"`
	RateLimit RateLimit    `toml:"RateLimit"`
}

type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type Telemetry struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// RateLimit bounds requests per client address on the RPC server.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Load loads the configuration from the given path, creating a default file
// (and operator keystore) on first run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:  ":8080",
		DataDir:     "./escrow-data",
		DBBackend:   BackendLevelDB,
		Environment: "local",
		Rent:        runtime.DefaultRent(),
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{Insecure: true},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
	}
}

// ProgramIDs resolves the configured program ids, falling back to the
// supplied defaults for empty values.
func (c *Config) ProgramIDs(defaultEscrow, defaultToken crypto.Address) (escrowID, tokenID crypto.Address, err error) {
	escrowID, err = parseProgramID(c.EscrowProgramID, defaultEscrow)
	if err != nil {
		return escrowID, tokenID, fmt.Errorf("EscrowProgramID: %w", err)
	}
	tokenID, err = parseProgramID(c.TokenProgramID, defaultToken)
	if err != nil {
		return escrowID, tokenID, fmt.Errorf("TokenProgramID: %w", err)
	}
	return escrowID, tokenID, nil
}

func parseProgramID(raw string, fallback crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return crypto.ParseAddress(raw)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OperatorKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
