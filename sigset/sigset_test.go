package sigset

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func testSignatories(t *testing.T, n int, vp uint64) []Signatory {
	t.Helper()

	out := make([]Signatory, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		out[i] = Signatory{PubKey: priv.PubKey(), VotingPower: vp}
	}
	return out
}

func TestNewSortsSignatories(t *testing.T) {
	sigs := testSignatories(t, 5, 1)

	set := New(3, 1000, sigs)
	require.Equal(t, uint32(3), set.Index)
	require.Equal(t, uint64(1000), set.CreateTime)
	require.Len(t, set.Signatories, 5)

	for i := 1; i < len(set.Signatories); i++ {
		a := set.Signatories[i-1].PubKey.SerializeCompressed()
		b := set.Signatories[i].PubKey.SerializeCompressed()
		require.Less(t, string(a), string(b))
	}
}

func TestQuorumVP(t *testing.T) {
	sigs := testSignatories(t, 3, 10)
	set := New(0, 0, sigs)

	// total = 30, quorum = 30*2/3 + 1 = 21
	require.Equal(t, uint64(21), set.QuorumVP())
	require.True(t, set.HasQuorum())
}

func TestHasQuorumFalseOnlyForEmptySet(t *testing.T) {
	// A single signer holding all of the power: quorum can never be
	// reached if that signer abstains, but HasQuorum only asks whether
	// the set's full membership could ever reach it.
	sigs := []Signatory{
		{PubKey: testSignatories(t, 1, 100)[0].PubKey, VotingPower: 100},
	}
	set := New(0, 0, sigs)
	require.True(t, set.HasQuorum())

	empty := New(0, 0, nil)
	require.False(t, empty.HasQuorum())
	require.Equal(t, uint64(0), empty.PossibleVP())
}

func TestContainsAndVotingPowerOf(t *testing.T) {
	sigs := testSignatories(t, 2, 5)
	set := New(0, 0, sigs)

	require.True(t, set.Contains(sigs[0].PubKey))
	require.Equal(t, uint64(5), set.VotingPowerOf(sigs[0].PubKey))

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	require.False(t, set.Contains(other.PubKey()))
	require.Equal(t, uint64(0), set.VotingPowerOf(other.PubKey()))
}

func TestOutputScriptIsP2WSH(t *testing.T) {
	sigs := testSignatories(t, 3, 1)
	set := New(0, 0, sigs)

	script, err := set.OutputScript(NullAddress)
	require.NoError(t, err)

	// OP_0 <32-byte push> = 1 + 1 + 32 bytes.
	require.Len(t, script, 34)
	require.Equal(t, byte(0x00), script[0])
	require.Equal(t, byte(0x20), script[1])
}

func TestOutputScriptVariesByDest(t *testing.T) {
	sigs := testSignatories(t, 3, 1)
	set := New(0, 0, sigs)

	var destA, destB Address
	destB[0] = 0x01

	scriptA, err := set.OutputScript(destA)
	require.NoError(t, err)
	scriptB, err := set.OutputScript(destB)
	require.NoError(t, err)

	require.NotEqual(t, scriptA, scriptB)
}

func TestRedeemScriptRejectsOversizedSet(t *testing.T) {
	sigs := testSignatories(t, 17, 1)
	set := New(0, 0, sigs)

	_, err := set.RedeemScript(NullAddress)
	require.Error(t, err)
}
