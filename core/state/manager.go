package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/storage"
)

var (
	accountPrefix = []byte("acct:")
	txHashPrefix  = []byte("txh:")
	genesisKey    = []byte("meta:genesis")
)

var (
	errNilDatabase = errors.New("state: database not configured")

	// ErrGenesisApplied is returned when a second genesis is committed.
	ErrGenesisApplied = errors.New("state: genesis already applied")
)

// Manager reads and writes host accounts on top of a key-value database.
// Accounts are RLP encoded under acct:<address>.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedAccount struct {
	Lamports   uint64
	Owner      crypto.Address
	Data       []byte
	Executable bool
}

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+crypto.AddressLength)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

func txHashKey(hash [32]byte) []byte {
	buf := make([]byte, len(txHashPrefix)+len(hash))
	copy(buf, txHashPrefix)
	copy(buf[len(txHashPrefix):], hash[:])
	return buf
}

// EncodeAccount returns the persisted form of acc.
func EncodeAccount(acc *types.Account) ([]byte, error) {
	if acc == nil {
		return nil, fmt.Errorf("state: nil account")
	}
	return rlp.EncodeToBytes(storedAccount{
		Lamports:   acc.Lamports,
		Owner:      acc.Owner,
		Data:       acc.Data,
		Executable: acc.Executable,
	})
}

// DecodeAccount parses the persisted form of an account.
func DecodeAccount(data []byte) (*types.Account, error) {
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return &types.Account{
		Lamports:   stored.Lamports,
		Owner:      stored.Owner,
		Data:       stored.Data,
		Executable: stored.Executable,
	}, nil
}

// GetAccount returns the account at addr. Missing accounts are returned as an
// empty system-owned slot.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if m == nil || m.db == nil {
		return nil, errNilDatabase
	}
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeAccount(data)
}

// PutAccount persists a single account.
func (m *Manager) PutAccount(addr crypto.Address, acc *types.Account) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := EncodeAccount(acc)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// HasTransaction reports whether a transaction hash was already committed.
func (m *Manager) HasTransaction(hash [32]byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	return m.db.Has(txHashKey(hash))
}

// Commit writes every account in the change set and records the transaction
// hash in a single batch so a crash cannot leave a partial transition.
func (m *Manager) Commit(txHash [32]byte, changes map[crypto.Address]*types.Account) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	entries := make([]storage.Entry, 0, len(changes)+1)
	for addr, acc := range changes {
		if acc.IsEmpty() {
			entries = append(entries, storage.Entry{Key: accountKey(addr)})
			continue
		}
		encoded, err := EncodeAccount(acc)
		if err != nil {
			return err
		}
		entries = append(entries, storage.Entry{Key: accountKey(addr), Value: encoded})
	}
	entries = append(entries, storage.Entry{Key: txHashKey(txHash), Value: []byte{1}})
	return m.db.WriteBatch(entries)
}

// GenesisHash returns the hash of the genesis applied to this store, if any.
func (m *Manager) GenesisHash() ([32]byte, bool, error) {
	var hash [32]byte
	if m == nil || m.db == nil {
		return hash, false, errNilDatabase
	}
	data, err := m.db.Get(genesisKey)
	if errors.Is(err, storage.ErrNotFound) {
		return hash, false, nil
	}
	if err != nil {
		return hash, false, err
	}
	if len(data) != len(hash) {
		return hash, false, fmt.Errorf("state: corrupt genesis marker")
	}
	copy(hash[:], data)
	return hash, true, nil
}

// CommitGenesis writes the genesis accounts together with the genesis marker.
// It fails if a genesis was already applied.
func (m *Manager) CommitGenesis(hash [32]byte, accounts map[crypto.Address]*types.Account) error {
	_, applied, err := m.GenesisHash()
	if err != nil {
		return err
	}
	if applied {
		return ErrGenesisApplied
	}
	entries := make([]storage.Entry, 0, len(accounts)+1)
	for addr, acc := range accounts {
		encoded, err := EncodeAccount(acc)
		if err != nil {
			return err
		}
		entries = append(entries, storage.Entry{Key: accountKey(addr), Value: encoded})
	}
	entries = append(entries, storage.Entry{Key: genesisKey, Value: append([]byte(nil), hash[:]...)})
	return m.db.WriteBatch(entries)
}
