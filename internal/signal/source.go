package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// ErrInvalidPayload is returned for value payloads that are not a JSON
// object with a "value" member.
var ErrInvalidPayload = errors.New("signal: invalid value payload")

// Source produces the current live values keyed by wire signal key.
type Source interface {
	Snapshot(ctx context.Context) (map[string]device.SignalValue, error)
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DecodeValue parses a {"value": ...} payload.
func DecodeValue(payload []byte) (device.SignalValue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return device.SignalValue{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	v, ok := raw["value"]
	if !ok {
		return device.SignalValue{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}
	var sig device.SignalValue
	if err := json.Unmarshal(v, &sig.Value); err != nil {
		return device.SignalValue{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return sig, nil
}

// StaticSource serves values set in process.
type StaticSource struct {
	mu     sync.RWMutex
	values map[string]device.SignalValue
}

// NewStaticSource returns a source holding a copy of initial.
func NewStaticSource(initial map[string]device.SignalValue) *StaticSource {
	values := make(map[string]device.SignalValue, len(initial))
	maps.Copy(values, initial)
	return &StaticSource{values: values}
}

// Set stores value under the wire key.
func (s *StaticSource) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = device.SignalValue{Value: value}
	s.mu.Unlock()
}

// Delete removes the wire key.
func (s *StaticSource) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Snapshot returns a copy of the stored values.
func (s *StaticSource) Snapshot(context.Context) (map[string]device.SignalValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), nil
}
