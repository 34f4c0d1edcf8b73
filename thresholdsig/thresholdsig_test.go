package thresholdsig

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/umbracustody/checkpointqueue/sigset"
)

type testSigner struct {
	priv *btcec.PrivateKey
}

func newTestSigners(t *testing.T, n int, vp uint64) ([]testSigner, []sigset.Signatory) {
	t.Helper()

	signers := make([]testSigner, n)
	sigs := make([]sigset.Signatory, n)
	for i := 0; i < n; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		signers[i] = testSigner{priv: priv}
		sigs[i] = sigset.Signatory{PubKey: priv.PubKey(), VotingPower: vp}
	}
	return signers, sigs
}

func sign(t *testing.T, signer testSigner, message [32]byte) []byte {
	t.Helper()
	sig := ecdsa.Sign(signer.priv, message[:])
	return sig.Serialize()
}

func TestCollectorHappyPath(t *testing.T) {
	signers, sigs := newTestSigners(t, 3, 10)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))

	message := sha256.Sum256([]byte("checkpoint sighash"))
	require.NoError(t, c.SetMessage(message))

	require.False(t, c.Done())

	sig0 := sign(t, signers[0], message)
	require.NoError(t, c.Sign(set.Signatories[indexOfSigner(set, signers[0])].PubKey, sig0))

	// Quorum for 3 equal signers at 10 VP each is 21; one signature
	// (10 VP) is not enough yet.
	require.False(t, c.Done())

	idx1 := indexOfSigner(set, signers[1])
	sig1 := sign(t, signers[1], message)
	require.NoError(t, c.Sign(set.Signatories[idx1].PubKey, sig1))

	// Two signatures (20 VP) are still one short of 21.
	require.False(t, c.Done())

	idx2 := indexOfSigner(set, signers[2])
	sig2 := sign(t, signers[2], message)
	require.NoError(t, c.Sign(set.Signatories[idx2].PubKey, sig2))

	require.True(t, c.Done())

	witness, err := c.ToWitness()
	require.NoError(t, err)
	require.Nil(t, witness[0]) // null-dummy
	require.Len(t, witness, 4)        // dummy + 3 signatures
}

func TestCollectorRejectsDoubleSign(t *testing.T) {
	signers, sigs := newTestSigners(t, 1, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))
	message := sha256.Sum256([]byte("m"))
	require.NoError(t, c.SetMessage(message))

	sig := sign(t, signers[0], message)
	require.NoError(t, c.Sign(set.Signatories[0].PubKey, sig))
	require.ErrorIs(t, c.Sign(set.Signatories[0].PubKey, sig), ErrAlreadySigned)
}

func TestCollectorRejectsNonMember(t *testing.T) {
	signers, sigs := newTestSigners(t, 1, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))
	message := sha256.Sum256([]byte("m"))
	require.NoError(t, c.SetMessage(message))

	outsider, _ := newTestSigners(t, 1, 1)
	sig := sign(t, outsider[0], message)
	require.ErrorIs(t, c.Sign(outsider[0].priv.PubKey(), sig), ErrNotSignatory)
	_ = signers
}

func TestCollectorRejectsInvalidSignature(t *testing.T) {
	signers, sigs := newTestSigners(t, 1, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))
	message := sha256.Sum256([]byte("m"))
	require.NoError(t, c.SetMessage(message))

	wrongMessage := sha256.Sum256([]byte("wrong"))
	badSig := sign(t, signers[0], wrongMessage)
	require.ErrorIs(t, c.Sign(set.Signatories[0].PubKey, badSig), ErrInvalidSignature)
}

func TestValidateOnlyDoesNotMutate(t *testing.T) {
	signers, sigs := newTestSigners(t, 1, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))
	message := sha256.Sum256([]byte("m"))
	require.NoError(t, c.SetMessage(message))

	sig := sign(t, signers[0], message)
	require.NoError(t, c.ValidateOnly(set.Signatories[0].PubKey, sig))

	// ValidateOnly must not have recorded the signature: Sign should
	// still succeed afterward.
	require.False(t, c.Done())
	require.NoError(t, c.Sign(set.Signatories[0].PubKey, sig))
	require.True(t, c.Done())
}

func TestMessageAlreadySet(t *testing.T) {
	_, sigs := newTestSigners(t, 1, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))

	m1 := sha256.Sum256([]byte("a"))
	m2 := sha256.Sum256([]byte("b"))
	require.NoError(t, c.SetMessage(m1))
	require.ErrorIs(t, c.SetMessage(m2), ErrMessageAlreadySet)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	signers, sigs := newTestSigners(t, 2, 1)
	set := sigset.New(0, 0, sigs)

	var c Collector
	require.NoError(t, c.FromSigset(set))
	message := sha256.Sum256([]byte("m"))
	require.NoError(t, c.SetMessage(message))
	sig := sign(t, signers[0], message)
	require.NoError(t, c.Sign(set.Signatories[0].PubKey, sig))

	gotSet, gotMessage, gotMessageSet, gotSigs := c.Export()

	var restored Collector
	restored.Restore(gotSet, gotMessage, gotMessageSet, gotSigs)

	require.Equal(t, c.Done(), restored.Done())
	witnessBefore, err := c.ToWitness()
	require.NoError(t, err)
	witnessAfter, err := restored.ToWitness()
	require.NoError(t, err)
	require.Equal(t, witnessBefore, witnessAfter)
}

// indexOfSigner finds signer's position within set by comparing
// serialized pubkeys, mirroring the unexported lookup Collector itself
// performs.
func indexOfSigner(set *sigset.SignatorySet, signer testSigner) int {
	target := signer.priv.PubKey().SerializeCompressed()
	for i, sig := range set.Signatories {
		same := true
		other := sig.PubKey.SerializeCompressed()
		if len(other) != len(target) {
			continue
		}
		for j := range other {
			if other[j] != target[j] {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}
