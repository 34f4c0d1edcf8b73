package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/umbracustody/checkpointqueue/checkpoint"
	"github.com/umbracustody/checkpointqueue/sigset"
	"github.com/umbracustody/checkpointqueue/thresholdsig"
)

// byteOrder is the wire encoding used throughout this package, matching
// channeldb's own choice of big-endian for every on-disk integer.
var byteOrder = binary.BigEndian

// indexToBytes encodes a logical checkpoint index as a 4-byte big-endian
// key, so that bucket cursor order matches logical order.
func indexToBytes(index uint32) []byte {
	var b [4]byte
	byteOrder.PutUint32(b[:], index)
	return b[:]
}

func bytesToIndex(b []byte) uint32 {
	return byteOrder.Uint32(b)
}

// writeVarBytes writes a byte slice as a 4-byte big-endian length prefix
// followed by its contents. Checkpoint records are small and never
// exceed the uint32 range a witness script or signature could occupy.
func writeVarBytes(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	byteOrder.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := byteOrder.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// encodeSignatorySet writes set's full contents: index, create time, and
// every signatory's compressed pubkey and voting power.
func encodeSignatorySet(w io.Writer, set *sigset.SignatorySet) error {
	if err := binary.Write(w, byteOrder, set.Index); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, set.CreateTime); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(set.Signatories))); err != nil {
		return err
	}
	for _, sig := range set.Signatories {
		if err := writeVarBytes(w, sig.PubKey.SerializeCompressed()); err != nil {
			return err
		}
		if err := binary.Write(w, byteOrder, sig.VotingPower); err != nil {
			return err
		}
	}
	return nil
}

func decodeSignatorySet(r io.Reader) (*sigset.SignatorySet, error) {
	set := &sigset.SignatorySet{}
	if err := binary.Read(r, byteOrder, &set.Index); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &set.CreateTime); err != nil {
		return nil, err
	}
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	set.Signatories = make([]sigset.Signatory, n)
	for i := range set.Signatories {
		raw, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		pubKey, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing signatory pubkey: %w", err)
		}
		var vp uint64
		if err := binary.Read(r, byteOrder, &vp); err != nil {
			return nil, err
		}
		set.Signatories[i] = sigset.Signatory{PubKey: pubKey, VotingPower: vp}
	}
	return set, nil
}

// encodeCollector writes a threshold-signature collector's full internal
// state: its sigset (duplicated per-input, since a chained input's
// collector may be bound to an older sigset than the checkpoint it lives
// in — see BuildingCheckpoint.PushInput), the fixed message, and the
// recorded signatures.
func encodeCollector(w io.Writer, c *thresholdsig.Collector) error {
	set, message, messageSet, sigs := c.Export()

	if set == nil {
		return binary.Write(w, byteOrder, false)
	}
	if err := binary.Write(w, byteOrder, true); err != nil {
		return err
	}
	if err := encodeSignatorySet(w, set); err != nil {
		return err
	}
	if _, err := w.Write(message[:]); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, messageSet); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(sigs))); err != nil {
		return err
	}
	for _, sig := range sigs {
		if err := writeVarBytes(w, sig); err != nil {
			return err
		}
	}
	return nil
}

func decodeCollector(r io.Reader) (*thresholdsig.Collector, error) {
	var hasSigset bool
	if err := binary.Read(r, byteOrder, &hasSigset); err != nil {
		return nil, err
	}
	c := &thresholdsig.Collector{}
	if !hasSigset {
		return c, nil
	}

	set, err := decodeSignatorySet(r)
	if err != nil {
		return nil, err
	}
	var message [32]byte
	if _, err := io.ReadFull(r, message[:]); err != nil {
		return nil, err
	}
	var messageSet bool
	if err := binary.Read(r, byteOrder, &messageSet); err != nil {
		return nil, err
	}
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	sigs := make([][]byte, n)
	for i := range sigs {
		sig, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}

	c.Restore(set, message, messageSet, sigs)
	return c, nil
}

func encodeInput(w io.Writer, in *checkpoint.Input) error {
	if _, err := w.Write(in.Prevout.Hash[:]); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, in.Prevout.Index); err != nil {
		return err
	}
	if err := writeVarBytes(w, in.ScriptPubKey); err != nil {
		return err
	}
	if err := writeVarBytes(w, in.RedeemScript); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, in.SigsetIndex); err != nil {
		return err
	}
	if _, err := w.Write(in.Dest[:]); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, in.Amount); err != nil {
		return err
	}
	return encodeCollector(w, &in.Sigs)
}

func decodeInput(r io.Reader) (*checkpoint.Input, error) {
	in := &checkpoint.Input{}

	if _, err := io.ReadFull(r, in.Prevout.Hash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &in.Prevout.Index); err != nil {
		return nil, err
	}
	scriptPubKey, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	in.ScriptPubKey = scriptPubKey

	redeemScript, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	in.RedeemScript = redeemScript

	if err := binary.Read(r, byteOrder, &in.SigsetIndex); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, in.Dest[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &in.Amount); err != nil {
		return nil, err
	}

	collector, err := decodeCollector(r)
	if err != nil {
		return nil, err
	}
	in.Sigs = *collector

	return in, nil
}

func encodeOutput(w io.Writer, out *checkpoint.Output) error {
	if err := binary.Write(w, byteOrder, out.Value); err != nil {
		return err
	}
	return writeVarBytes(w, out.PkScript)
}

func decodeOutput(r io.Reader) (*checkpoint.Output, error) {
	out := &wire.TxOut{}
	if err := binary.Read(r, byteOrder, &out.Value); err != nil {
		return nil, err
	}
	pkScript, err := readVarBytes(r)
	if err != nil {
		return nil, err
	}
	out.PkScript = pkScript
	return out, nil
}

// encodeCheckpoint serializes a single checkpoint record: its status,
// inputs, signed-input count, outputs, and frozen signatory set.
func encodeCheckpoint(cp *checkpoint.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, byteOrder, int32(cp.Status)); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, byteOrder, uint32(len(cp.Inputs))); err != nil {
		return nil, err
	}
	for _, in := range cp.Inputs {
		if err := encodeInput(&buf, in); err != nil {
			return nil, fmt.Errorf("encoding input: %w", err)
		}
	}

	if err := binary.Write(&buf, byteOrder, cp.SignedInputs); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, byteOrder, uint32(len(cp.Outputs))); err != nil {
		return nil, err
	}
	for _, out := range cp.Outputs {
		if err := encodeOutput(&buf, out); err != nil {
			return nil, fmt.Errorf("encoding output: %w", err)
		}
	}

	if err := encodeSignatorySet(&buf, cp.Sigset); err != nil {
		return nil, fmt.Errorf("encoding sigset: %w", err)
	}

	return buf.Bytes(), nil
}

func decodeCheckpoint(raw []byte) (*checkpoint.Checkpoint, error) {
	r := bytes.NewReader(raw)
	cp := &checkpoint.Checkpoint{}

	var status int32
	if err := binary.Read(r, byteOrder, &status); err != nil {
		return nil, err
	}
	cp.Status = checkpoint.Status(status)

	var numInputs uint32
	if err := binary.Read(r, byteOrder, &numInputs); err != nil {
		return nil, err
	}
	cp.Inputs = make([]*checkpoint.Input, numInputs)
	for i := range cp.Inputs {
		in, err := decodeInput(r)
		if err != nil {
			return nil, fmt.Errorf("decoding input %d: %w", i, err)
		}
		cp.Inputs[i] = in
	}

	if err := binary.Read(r, byteOrder, &cp.SignedInputs); err != nil {
		return nil, err
	}

	var numOutputs uint32
	if err := binary.Read(r, byteOrder, &numOutputs); err != nil {
		return nil, err
	}
	cp.Outputs = make([]*checkpoint.Output, numOutputs)
	for i := range cp.Outputs {
		out, err := decodeOutput(r)
		if err != nil {
			return nil, fmt.Errorf("decoding output %d: %w", i, err)
		}
		cp.Outputs[i] = out
	}

	set, err := decodeSignatorySet(r)
	if err != nil {
		return nil, fmt.Errorf("decoding sigset: %w", err)
	}
	cp.Sigset = set

	return cp, nil
}
