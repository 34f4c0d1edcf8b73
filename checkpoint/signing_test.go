package checkpoint

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/umbracustody/checkpointqueue/sigset"
)

// xpubFixture derives a master extended key and exposes the public xpub
// SigningCheckpoint.Sign expects alongside the matching private child keys
// a test can sign with, so that the signatory pubkeys registered with
// FromSigset are real BIP-32 children SigningCheckpoint.ToSign/Sign can
// independently re-derive.
type xpubFixture struct {
	master *hdkeychain.ExtendedKey
	xpub   *hdkeychain.ExtendedKey
}

func newXpubFixture(t *testing.T) *xpubFixture {
	t.Helper()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	xpub, err := master.Neuter()
	require.NoError(t, err)

	return &xpubFixture{master: master, xpub: xpub}
}

// signatoryFor returns the Signatory governing sigsetIndex, derived the
// same way derivePubKey would re-derive it from the public xpub.
func (f *xpubFixture) signatoryFor(t *testing.T, sigsetIndex uint32, vp uint64) sigset.Signatory {
	t.Helper()
	pubKey, err := derivePubKey(f.xpub, sigsetIndex)
	require.NoError(t, err)
	return sigset.Signatory{PubKey: pubKey, VotingPower: vp}
}

// signFor signs message with the private child key at sigsetIndex.
func (f *xpubFixture) signFor(t *testing.T, sigsetIndex uint32, message [32]byte) []byte {
	t.Helper()
	child, err := f.master.Child(sigsetIndex)
	require.NoError(t, err)
	priv, err := child.ECPrivKey()
	require.NoError(t, err)
	return ecdsa.Sign(priv, message[:]).Serialize()
}

func newXpubTestQueue(t *testing.T, fixture *xpubFixture, n int) (*CheckpointQueue, *clock.TestClock) {
	t.Helper()

	sigs := make([]sigset.Signatory, n)
	for i := 0; i < n; i++ {
		sigs[i] = fixture.signatoryFor(t, uint32(i), 1)
	}

	testClock := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	cfg := &Config{
		FeeRate:            1,
		CheckpointInterval: 600,
		Clock:              testClock,
		SigsetBuilder:      &sigset.StaticBuilder{Signatories: sigs},
	}
	return New(cfg), testClock
}

// Every sigset built by newXpubTestQueue registers a single signatory at
// child index 0 (since StaticBuilder re-stamps the same roster for every
// logical index), so tests only ever need to sign with child 0's key.
func TestSignExcessSignaturesRejected(t *testing.T) {
	fixture := newXpubFixture(t)
	q, testClock := newXpubTestQueue(t, fixture, 1)

	require.NoError(t, q.MaybeStep())
	building, err := q.Building()
	require.NoError(t, err)
	set, err := q.ActiveSigset()
	require.NoError(t, err)
	var dest sigset.Address
	require.NoError(t, building.PushInput(wire.OutPoint{}, set, dest, 1000))

	testClock.SetTime(testClock.Now().Add(601 * time.Second))
	require.NoError(t, q.MaybeStep())

	signing, err := q.Signing()
	require.NoError(t, err)
	require.NotNil(t, signing)

	message := signing.Checkpoint().Inputs[0].Sigs.Message()
	sig := fixture.signFor(t, 0, message)

	err = signing.Sign(fixture.xpub, [][]byte{sig, sig})
	require.ErrorIs(t, err, ErrExcessSignatures)
}

func TestSignInvalidSignatureLeavesStateUnchanged(t *testing.T) {
	fixture := newXpubFixture(t)
	q, testClock := newXpubTestQueue(t, fixture, 1)

	require.NoError(t, q.MaybeStep())
	building, err := q.Building()
	require.NoError(t, err)
	set, err := q.ActiveSigset()
	require.NoError(t, err)
	var dest sigset.Address
	require.NoError(t, building.PushInput(wire.OutPoint{}, set, dest, 1000))

	testClock.SetTime(testClock.Now().Add(601 * time.Second))
	require.NoError(t, q.MaybeStep())

	signing, err := q.Signing()
	require.NoError(t, err)

	wrongMessage := [32]byte{0xFF}
	badSig := fixture.signFor(t, 0, wrongMessage)

	err = signing.Sign(fixture.xpub, [][]byte{badSig})
	require.Error(t, err)

	require.Equal(t, uint16(0), signing.Checkpoint().SignedInputs)
	require.False(t, signing.Checkpoint().Inputs[0].Sigs.Done())
}

func TestSignHappyPathCompletesCheckpoint(t *testing.T) {
	fixture := newXpubFixture(t)
	q, testClock := newXpubTestQueue(t, fixture, 1)

	require.NoError(t, q.MaybeStep())
	building, err := q.Building()
	require.NoError(t, err)
	set, err := q.ActiveSigset()
	require.NoError(t, err)
	var dest sigset.Address
	require.NoError(t, building.PushInput(wire.OutPoint{}, set, dest, 1000))

	testClock.SetTime(testClock.Now().Add(601 * time.Second))
	require.NoError(t, q.MaybeStep())

	toSign, err := q.ToSign(fixture.xpub)
	require.NoError(t, err)
	require.Len(t, toSign, 1)

	sig := fixture.signFor(t, toSign[0].SigsetIndex, toSign[0].Hash)
	require.NoError(t, q.Sign(fixture.xpub, [][]byte{sig}))

	cp, err := q.Get(0)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, cp.Status)
}

// TestChainedReserveInput covers the S4 chaining scenario: a second
// checkpoint's first input spends the first checkpoint's reserve output,
// governed by the first checkpoint's own (older) sigset.
func TestChainedReserveInput(t *testing.T) {
	fixture := newXpubFixture(t)
	q, testClock := newXpubTestQueue(t, fixture, 1)

	require.NoError(t, q.MaybeStep())
	building, err := q.Building()
	require.NoError(t, err)
	set, err := q.ActiveSigset()
	require.NoError(t, err)
	var dest sigset.Address
	require.NoError(t, building.PushInput(wire.OutPoint{}, set, dest, 100_000))

	testClock.SetTime(testClock.Now().Add(601 * time.Second))
	require.NoError(t, q.MaybeStep())

	toSign, err := q.ToSign(fixture.xpub)
	require.NoError(t, err)
	sig := fixture.signFor(t, toSign[0].SigsetIndex, toSign[0].Hash)
	require.NoError(t, q.Sign(fixture.xpub, [][]byte{sig}))

	cp0, err := q.Get(0)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, cp0.Status)

	// A withdrawal against the new Building checkpoint (index 1) gives
	// it pending activity so the next tick doesn't treat it as idle.
	building1, err := q.Building()
	require.NoError(t, err)
	require.NoError(t, building1.PushOutput(&wire.TxOut{
		Value:    500,
		PkScript: []byte{0x51},
	}))

	testClock.SetTime(testClock.Now().Add(601 * time.Second))
	require.NoError(t, q.MaybeStep())

	cp1, err := q.Get(1)
	require.NoError(t, err)
	require.Equal(t, StatusSigning, cp1.Status)
	require.Len(t, cp1.Inputs, 1)

	// The chained input's sigset index must be the predecessor's
	// (index 0), not the owning checkpoint's own index (1).
	require.Equal(t, uint32(0), cp1.Inputs[0].SigsetIndex)

	// Its prevout must be the predecessor's reserve output (output 0)
	// of the now-complete checkpoint 0 transaction.
	tx0, _, err := cp0.Tx()
	require.NoError(t, err)
	require.Equal(t, tx0.TxHash(), cp1.Inputs[0].Prevout.Hash)
	require.Equal(t, uint32(0), cp1.Inputs[0].Prevout.Index)
}
