package runtime

// AccountStorageOverhead is the per-account byte overhead charged on top of
// the data length.
const AccountStorageOverhead = 128

// Rent holds the parameters of the minimum self-funding balance.
type Rent struct {
	LamportsPerByteYear     uint64 `toml:"LamportsPerByteYear" yaml:"lamportsPerByteYear"`
	ExemptionThresholdYears uint64 `toml:"ExemptionThresholdYears" yaml:"exemptionThresholdYears"`
}

// DefaultRent mirrors the common mainnet defaults.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionThresholdYears: 2}
}

// MinimumBalance returns the balance an account with dataLen bytes needs to be
// rent exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThresholdYears
}

// IsExempt reports whether lamports cover the minimum balance for dataLen.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
