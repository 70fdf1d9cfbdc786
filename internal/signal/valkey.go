package signal

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// HashReader returns the raw fields of the signal hash.
type HashReader interface {
	ReadSignals(ctx context.Context) (map[string]string, error)
}

// ValkeySource reads the full signal hash on every snapshot.
type ValkeySource struct {
	reader HashReader
	logger Logger
}

// NewValkeySource wraps reader, normally a *valkey.Client.
func NewValkeySource(reader HashReader) *ValkeySource {
	return &ValkeySource{reader: reader, logger: noopLogger{}}
}

// SetLogger sets the logger used for undecodable fields.
func (s *ValkeySource) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Snapshot decodes every hash field. Fields with invalid payloads are
// skipped and logged.
func (s *ValkeySource) Snapshot(ctx context.Context) (map[string]device.SignalValue, error) {
	fields, err := s.reader.ReadSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading signal hash: %w", err)
	}

	out := make(map[string]device.SignalValue, len(fields))
	for key, payload := range fields {
		sig, err := DecodeValue([]byte(payload))
		if err != nil {
			s.logger.Debug("skipping signal field", "key", key, "error", err)
			continue
		}
		out[key] = sig
	}
	return out, nil
}
