package durability

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var snapshotEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("durability: build canonical cbor enc mode: %v", err))
	}
	return mode
}()

// EncodeSnapshot canonically CBOR-encodes v (typically an engine-owned
// session snapshot struct) into the opaque blob form SaveSnapshot
// expects. Canonical encoding keeps debug_snapshot output byte-stable
// across runs for identical state, which the conformance actor's
// golden-output comparisons rely on.
func EncodeSnapshot(v any) ([]byte, error) {
	blob, err := snapshotEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("durability: encode snapshot: %w", err)
	}
	return blob, nil
}

// DecodeSnapshot decodes a blob produced by EncodeSnapshot into out,
// which must be a pointer to the same type that was encoded.
func DecodeSnapshot(blob []byte, out any) error {
	if err := cbor.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("durability: decode snapshot: %w", err)
	}
	return nil
}
