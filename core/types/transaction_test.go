package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/crypto"
)

func TestTransactionSignAndVerify(t *testing.T) {
	payer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cosigner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	ix := Instruction{
		ProgramID: crypto.LabelAddress("program"),
		Accounts: []AccountMeta{
			NewAccountMeta(crypto.LabelAddress("data"), false),
			NewReadonlyAccountMeta(cosigner.Address(), true),
			NewReadonlyAccountMeta(payer.Address(), true),
		},
		Data: []byte{1, 2, 3},
	}
	tx := NewTransaction(payer.Address(), 7, ix)
	require.Equal(t, []crypto.Address{payer.Address(), cosigner.Address()}, tx.Signers())

	require.ErrorIs(t, tx.Sign(payer), ErrMissingSignature)
	require.NoError(t, tx.Sign(payer, cosigner))
	require.NoError(t, tx.VerifySignatures())

	before, err := tx.Hash()
	require.NoError(t, err)
	tx.Instructions[0].Data = []byte{9}
	after, err := tx.Hash()
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.ErrorIs(t, tx.VerifySignatures(), ErrBadSignature)
}

func TestTransactionRequiresInstructions(t *testing.T) {
	payer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := NewTransaction(payer.Address(), 1)
	require.NoError(t, tx.Sign(payer))
	require.ErrorIs(t, tx.VerifySignatures(), ErrNoInstructions)
}

func TestAccountClone(t *testing.T) {
	acc := NewAccount(10, 4, crypto.LabelAddress("owner"))
	clone := acc.Clone()
	clone.Data[0] = 1
	require.Zero(t, acc.Data[0])
	require.False(t, acc.IsEmpty())
	require.True(t, (&Account{}).IsEmpty())
}
