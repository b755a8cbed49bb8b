package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/observability/metrics"
)

type Keying string

const (
	// KeyByStage persists the first result of a stage and returns it on every
	// later call whatever the inputs are. Callers must Clear the store when
	// inputs change.
	KeyByStage Keying = "stage"
	// KeyByContent adds a fingerprint of the stage inputs to the key.
	KeyByContent Keying = "content"
)

func ParseKeying(value string) (Keying, error) {
	switch Keying(strings.ToLower(strings.TrimSpace(value))) {
	case "", KeyByStage:
		return KeyByStage, nil
	case KeyByContent:
		return KeyByContent, nil
	default:
		return "", fmt.Errorf("unknown cache keying %q", value)
	}
}

type artifact struct {
	Stage     string          `json:"stage"`
	Key       string          `json:"key"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type Memo struct {
	store  Store
	keying Keying
}

func NewMemo(store Store, keying Keying) *Memo {
	if keying == "" {
		keying = KeyByStage
	}
	return &Memo{store: store, keying: keying}
}

func (m *Memo) Keying() Keying {
	if m == nil {
		return ""
	}
	return m.keying
}

func (m *Memo) Store() Store {
	if m == nil {
		return nil
	}
	return m.store
}

// Lock takes the store lock when the backend supports one.
func (m *Memo) Lock(ctx context.Context) (func(), error) {
	if m == nil || m.store == nil {
		return func() {}, nil
	}
	if locker, ok := m.store.(Locker); ok {
		return locker.Lock(ctx)
	}
	return func() {}, nil
}

func (m *Memo) Clear(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Clear(ctx)
}

// Fingerprinter returns a digest of a stage's inputs. It is only called
// under KeyByContent, since it usually has to read the inputs.
type Fingerprinter func() (string, error)

// Memoize returns the persisted result for stage, or computes and persists
// it. A nil Memo computes every time.
func Memoize[T any](ctx context.Context, m *Memo, stage string, inputs Fingerprinter, compute func() (T, error)) (T, error) {
	var zero T
	if m == nil || m.store == nil {
		return compute()
	}

	key := stage
	if m.keying == KeyByContent && inputs != nil {
		digest, err := inputs()
		if err != nil {
			return zero, fmt.Errorf("fingerprint %s inputs: %w", stage, err)
		}
		key = stage + "-" + digest
	}

	data, found, err := m.store.Load(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("load cache artifact %s: %w", key, err)
	}
	if found {
		var art artifact
		if err := json.Unmarshal(data, &art); err != nil {
			return zero, &CorruptionError{Key: key, Err: err}
		}
		if art.Stage != stage {
			return zero, &CorruptionError{Key: key, Err: fmt.Errorf("artifact belongs to stage %q", art.Stage)}
		}
		var value T
		if err := json.Unmarshal(art.Payload, &value); err != nil {
			return zero, &CorruptionError{Key: key, Err: err}
		}
		metrics.ObserveCacheLookup(true)
		logger.WithFields(map[string]interface{}{
			"stage":      stage,
			"key":        key,
			"created_at": art.CreatedAt,
		}).Debug("stage result served from cache")
		return value, nil
	}

	metrics.ObserveCacheLookup(false)
	value, err := compute()
	if err != nil {
		return zero, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode %s result: %w", stage, err)
	}
	encoded, err := json.Marshal(artifact{
		Stage:     stage,
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return zero, err
	}
	if err := m.store.Save(ctx, key, encoded); err != nil {
		return zero, fmt.Errorf("save cache artifact %s: %w", key, err)
	}
	return value, nil
}
