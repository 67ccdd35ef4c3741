// Package audit provides PDR (Process Decision Record) writing for recsync.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/recsync/internal/models"
)

// Store persists decision records.
type Store interface {
	WritePDR(ctx context.Context, action, inputsHash, outcome, jobID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store Store
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Store) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a state-mutating action. A nil writer
// records nothing.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs any, outcome, jobID, details string) (*models.PDREntry, error) {
	if w == nil {
		return nil, nil
	}
	return w.store.WritePDR(ctx, action, HashInputs(inputs), outcome, jobID, details)
}

// HashInputs returns the SHA-256 of the JSON encoding of inputs. Raw byte
// payloads are hashed as-is.
func HashInputs(inputs any) string {
	data, ok := inputs.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(inputs); err != nil {
			return "hash_error"
		}
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
