package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/crypto"
)

func TestLoadCreatesDefaultWithKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendLevelDB, cfg.DBBackend)
	require.Equal(t, filepath.Join(dir, "operator.keystore"), cfg.OperatorKeystorePath)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = crypto.LoadFromKeystore(cfg.OperatorKeystorePath, "")
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.OperatorKeystorePath, reloaded.OperatorKeystorePath)
	require.Equal(t, cfg.Rent, reloaded.Rent)
	require.Equal(t, cfg.RateLimit, reloaded.RateLimit)
}

func TestLoadFillsMissingKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.toml")
	require.NoError(t, os.WriteFile(path, []byte("DBBackend = \"memory\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.DBBackend)
	require.NotEmpty(t, cfg.OperatorKeystorePath)
	require.Equal(t, ":8080", cfg.RPCAddress)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "OperatorKeystorePath")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	require.NoError(t, os.WriteFile(path, []byte("ListenAddress = \":6001\"\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown key")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":      func(c *Config) { c.DBBackend = "sqlite" },
		"data dir":     func(c *Config) { c.DataDir = "" },
		"rpc address":  func(c *Config) { c.RPCAddress = " " },
		"rent":         func(c *Config) { c.Rent.LamportsPerByteYear = 0 },
		"burst":        func(c *Config) { c.RateLimit.Burst = 0 },
		"sample ratio": func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"program ids": func(c *Config) {
			c.EscrowProgramID = "0x01"
			c.TokenProgramID = "0x01"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())

	mem := Default()
	mem.DBBackend = BackendMemory
	mem.DataDir = ""
	require.NoError(t, mem.Validate())
}

func TestProgramIDs(t *testing.T) {
	escrowDefault := crypto.LabelAddress("escrow")
	tokenDefault := crypto.LabelAddress("token")

	cfg := Default()
	escrowID, tokenID, err := cfg.ProgramIDs(escrowDefault, tokenDefault)
	require.NoError(t, err)
	require.Equal(t, escrowDefault, escrowID)
	require.Equal(t, tokenDefault, tokenID)

	custom := crypto.LabelAddress("custom")
	cfg.TokenProgramID = custom.String()
	_, tokenID, err = cfg.ProgramIDs(escrowDefault, tokenDefault)
	require.NoError(t, err)
	require.Equal(t, custom, tokenID)

	cfg.EscrowProgramID = "not-an-address"
	_, _, err = cfg.ProgramIDs(escrowDefault, tokenDefault)
	require.ErrorContains(t, err, "EscrowProgramID")
}
