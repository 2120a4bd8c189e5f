// Package memory holds single-process stores for development and tests.
// Conditional updates are serialized by a mutex.
package memory

import (
	"context"

	"access-gate/internal/model"
)

type plainCodec struct{}

func (plainCodec) Encrypt(_ context.Context, s string) (string, error) { return s, nil }
func (plainCodec) Decrypt(_ context.Context, s string) (string, error) { return s, nil }

func codecOrPlain(codec model.FieldCodec) model.FieldCodec {
	if codec == nil {
		return plainCodec{}
	}
	return codec
}
