package engine

import "github.com/quantumshieldlabs/qsp-core/wire"

// reject wraps a wire.RejectError so every engine-level failure carries
// one of the actor's well-known reason codes, the way dr.go's Session
// methods always return a typed error rather than a bare string.
func reject(reason wire.ReasonCode, format string, args ...any) error {
	return wire.NewRejectError(reason, format, args...)
}
