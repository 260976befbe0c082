package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/telecare/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// This is critical for hash verification - Go maps have random iteration
// order, and PostgreSQL JSONB may reorder keys, so we must sort them for
// consistent hashing.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// Entry is an immutable audit log record. Each entry's hash covers the
// previous entry's hash, so tampering anywhere breaks the chain from that
// point on.
type Entry struct {
	ID         types.ID  `json:"id"`
	Sequence   int64     `json:"sequence"`
	RecordedAt time.Time `json:"recordedAt"`
	Hash       string    `json:"hash"`
	PrevHash   string    `json:"prevHash,omitempty"`

	// Actor
	ActorType string   `json:"actorType"` // patient, doctor, admin, system
	ActorID   types.ID `json:"actorId"`

	// Action
	Action       string    `json:"action"`
	ResourceType string    `json:"resourceType"`
	ResourceID   *types.ID `json:"resourceId,omitempty"`

	// Changes
	Changes map[string]any `json:"changes,omitempty"`
}

// NewEntry creates a hash-chained audit entry
func NewEntry(actorType string, actorID types.ID, action, resourceType string, resourceID *types.ID, changes map[string]any, prevHash string) *Entry {
	entry := &Entry{
		ID: types.NewID(),
		// Truncate to microseconds for PostgreSQL compatibility
		RecordedAt:   time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorType:    actorType,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}

	entry.Hash = entry.calculateHash()
	return entry
}

// calculateHash calculates the SHA-256 hash of the entry using canonical
// JSON for deterministic output regardless of map key ordering.
func (e *Entry) calculateHash() string {
	data := map[string]any{
		"id":            e.ID,
		"recorded_at":   e.RecordedAt.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}

	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// ListFilter defines filters for listing audit entries
type ListFilter struct {
	ActorID      *types.ID
	Action       string
	ResourceType string
	ResourceID   *types.ID
	Limit        int
	Offset       int
}
