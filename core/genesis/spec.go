package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"escrowchain/crypto"
)

// mintLabelPrefix names mints declared without an explicit address.
const mintLabelPrefix = "escrowchain/mint/"

// GenesisSpec is the initial state of a node: lamport balances, token mints
// and token accounts holding the initial supply.
type GenesisSpec struct {
	Accounts      []AccountSpec      `yaml:"accounts"`
	Mints         []MintSpec         `yaml:"mints"`
	TokenAccounts []TokenAccountSpec `yaml:"tokenAccounts"`

	hash [32]byte
}

type AccountSpec struct {
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
}

// MintSpec declares a mint. Without Address the mint lives at
// crypto.LabelAddress("escrowchain/mint/"+Name).
type MintSpec struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address,omitempty"`
	Decimals  uint8  `yaml:"decimals"`
	Authority string `yaml:"authority"`
}

// TokenAccountSpec funds the associated token account of Owner. Mint refers to
// a MintSpec by name.
type TokenAccountSpec struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount uint64 `yaml:"amount"`
}

// LoadGenesisSpec reads and validates a YAML genesis file.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes a YAML genesis document. Unknown keys are
// rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	spec.hash = blake3.Sum256(raw)
	return &spec, nil
}

// Hash identifies the genesis document. Specs built in code hash their YAML
// encoding.
func (s *GenesisSpec) Hash() ([32]byte, error) {
	if s.hash != ([32]byte{}) {
		return s.hash, nil
	}
	raw, err := yaml.Marshal(s)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(raw), nil
}

// MintAddress resolves the address of a mint declaration.
func (m MintSpec) MintAddress() (crypto.Address, error) {
	if strings.TrimSpace(m.Address) != "" {
		return crypto.ParseAddress(m.Address)
	}
	return crypto.LabelAddress(mintLabelPrefix + m.Name), nil
}

func (s *GenesisSpec) validate() error {
	seen := make(map[crypto.Address]string)
	claim := func(addr crypto.Address, what string) error {
		if prev, ok := seen[addr]; ok {
			return fmt.Errorf("%s collides with %s at %s", what, prev, addr)
		}
		seen[addr] = what
		return nil
	}

	for i, acc := range s.Accounts {
		addr, err := crypto.ParseAddress(acc.Address)
		if err != nil {
			return fmt.Errorf("accounts[%d].address: %w", i, err)
		}
		if err := claim(addr, fmt.Sprintf("accounts[%d]", i)); err != nil {
			return err
		}
	}

	mints := make(map[string]struct{}, len(s.Mints))
	for i, mint := range s.Mints {
		if strings.TrimSpace(mint.Name) == "" {
			return fmt.Errorf("mints[%d].name must be set", i)
		}
		if _, dup := mints[mint.Name]; dup {
			return fmt.Errorf("mints[%d]: duplicate name %q", i, mint.Name)
		}
		mints[mint.Name] = struct{}{}
		addr, err := mint.MintAddress()
		if err != nil {
			return fmt.Errorf("mints[%d].address: %w", i, err)
		}
		if err := claim(addr, fmt.Sprintf("mint %q", mint.Name)); err != nil {
			return err
		}
		if strings.TrimSpace(mint.Authority) != "" {
			if _, err := crypto.ParseAddress(mint.Authority); err != nil {
				return fmt.Errorf("mints[%d].authority: %w", i, err)
			}
		}
	}

	holders := make(map[string]struct{}, len(s.TokenAccounts))
	for i, ta := range s.TokenAccounts {
		owner, err := crypto.ParseAddress(ta.Owner)
		if err != nil {
			return fmt.Errorf("tokenAccounts[%d].owner: %w", i, err)
		}
		if _, ok := mints[ta.Mint]; !ok {
			return fmt.Errorf("tokenAccounts[%d]: unknown mint %q", i, ta.Mint)
		}
		key := ta.Mint + "/" + owner.String()
		if _, dup := holders[key]; dup {
			return fmt.Errorf("tokenAccounts[%d]: duplicate account for %s", i, key)
		}
		holders[key] = struct{}{}
	}
	return nil
}
