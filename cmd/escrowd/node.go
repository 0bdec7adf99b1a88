package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"escrowchain/cmd/internal/passphrase"
	"escrowchain/config"
	"escrowchain/core/events"
	"escrowchain/core/genesis"
	"escrowchain/core/runtime"
	"escrowchain/core/state"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/observability"
	"escrowchain/observability/metrics"
	"escrowchain/storage"
)

const (
	operatorPassEnv = "ESCROW_OPERATOR_PASS"
	// devOperatorLamports funds the operator when no genesis file is given.
	devOperatorLamports = 1_000_000_000_000
)

type node struct {
	runtime  *runtime.Runtime
	state    *state.Manager
	escrowID crypto.Address
	tokenID  crypto.Address
	logger   *slog.Logger
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.DBBackend))
	if backend == config.BackendMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch backend {
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendBolt:
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"), nil)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DBBackend %q", cfg.DBBackend)
	}
}

// newNode builds the runtime and registers the system, token and escrow
// programs under their configured ids.
func newNode(cfg *config.Config, db storage.Database, logger *slog.Logger) (*node, error) {
	escrowID, tokenID, err := cfg.ProgramIDs(escrow.DefaultProgramID, token.DefaultProgramID)
	if err != nil {
		return nil, err
	}
	if escrowID == system.ProgramID || tokenID == system.ProgramID {
		return nil, fmt.Errorf("program ids must differ from the system program")
	}
	manager := state.NewManager(db)
	rt := runtime.New(manager,
		runtime.WithRent(cfg.Rent),
		runtime.WithLogger(logger),
		runtime.WithEmitter(observability.CountingEmitter{Next: events.NoopEmitter{}}),
		runtime.WithMetrics(metrics.Runtime()),
	)
	rt.Register(system.ProgramID, "system", system.Program{})
	rt.Register(tokenID, "token", token.Program{})
	rt.Register(escrowID, "escrow", escrow.NewProcessor())

	logger.Info("programs registered",
		slog.String("escrow", escrowID.String()),
		slog.String("token", tokenID.String()))
	return &node{runtime: rt, state: manager, escrowID: escrowID, tokenID: tokenID, logger: logger}, nil
}

// applyGenesis loads the genesis file, or funds the operator account when no
// file is configured, and writes it on first start.
func (n *node) applyGenesis(path, operatorKeystore string) error {
	var spec *genesis.GenesisSpec
	if path != "" {
		loaded, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return err
		}
		spec = loaded
	} else {
		key, err := loadOperatorKey(operatorKeystore, passphrase.NewSource(operatorPassEnv, "operator keystore").Get)
		if err != nil {
			return err
		}
		spec = devGenesis(key.Address())
		n.logger.Warn("no genesis file configured; funding the operator account",
			slog.String("operator", key.Address().String()))
	}

	applied, err := genesis.Apply(n.state, spec, n.runtime.Rent(), n.tokenID)
	if err != nil {
		return err
	}
	if applied {
		n.logger.Info("genesis applied",
			slog.Int("accounts", len(spec.Accounts)),
			slog.Int("mints", len(spec.Mints)),
			slog.Int("tokenAccounts", len(spec.TokenAccounts)))
	}
	return nil
}

func devGenesis(operator crypto.Address) *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		Accounts: []genesis.AccountSpec{{Address: operator.String(), Lamports: devOperatorLamports}},
	}
}

// loadOperatorKey opens the operator keystore, trying the empty passphrase of
// an auto-generated keystore before asking resolve.
func loadOperatorKey(path string, resolve func() (string, error)) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("operator keystore path not configured")
	}
	if key, err := crypto.LoadFromKeystore(path, ""); err == nil {
		return key, nil
	}
	pass, err := resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain operator keystore passphrase: %w", err)
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", path, err)
	}
	return key, nil
}
