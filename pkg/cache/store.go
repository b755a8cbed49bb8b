package cache

import (
	"context"
	"errors"
	"fmt"
)

var ErrLocked = errors.New("cache is locked by another build")

// Store persists stage artifacts under string keys.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
	Clear(ctx context.Context) error
}

// Locker is implemented by stores shared between processes. Builds hold the
// lock for their whole duration because artifacts are written once per key.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// CorruptionError means a persisted artifact exists but cannot be decoded.
// It is never treated as a cache miss.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache artifact %s is corrupt: %v", e.Key, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func IsCorruption(err error) bool {
	var target *CorruptionError
	return errors.As(err, &target)
}
