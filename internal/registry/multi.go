package registry

import (
	"context"

	"github.com/fr0stylo/ciattest/internal/attest"
)

// Multi hands an attestation to several sinks in order and stops at the
// first failure.
type Multi []attest.Emitter

func (m Multi) Emit(ctx context.Context, a attest.Attestation) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
