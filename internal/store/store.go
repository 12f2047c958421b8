// Package store is the durable cache of raw datasets: one whole-dataset entry per key,
// overwritten on every successful refresh and never merged.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

// ErrNotFound indicates that no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one persisted dataset.
type Entry struct {
	Key            string          `json:"key"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	DatasetVersion int             `json:"datasetVersion"`
	WrittenAt      time.Time       `json:"writtenAt"`
}

// Envelope decodes the payload.
func (e *Entry) Envelope() (domain.Envelope, error) {
	return domain.DecodeEnvelope(e.Payload)
}

// Info describes a persisted entry for the cache administration surface.
type Info struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	RecordCount int       `json:"recordCount"`
}

// Backend is a durable key/value medium. Get and Delete return ErrNotFound for
// missing keys.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Info, error)
}

// Persistent applies the cache policy on top of a Backend: storage failures are logged
// and degrade to a miss or a false result instead of an error, and entries stamped in
// the future are discarded as corrupt.
type Persistent struct {
	backend    Backend
	normalizer *timestamp.Normalizer
	clock      clockwork.Clock
}

// NewPersistent wraps a Backend.
func NewPersistent(backend Backend, normalizer *timestamp.Normalizer, clock clockwork.Clock) *Persistent {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Persistent{backend: backend, normalizer: normalizer, clock: clock}
}

// Read returns the entry for key, or false on a miss of any kind.
func (p *Persistent) Read(ctx context.Context, key string) (*Entry, bool) {
	entry, err := p.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("cache read failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}

	if now := p.clock.Now(); entry.Timestamp.After(now) {
		slog.Warn("discarding cache entry with future timestamp",
			"key", key, "timestamp", entry.Timestamp, "now", now)
		if err := p.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to delete corrupt cache entry", "key", key, "error", err)
		}
		return nil, false
	}

	return entry, true
}

// Write replaces the entry for key with payload. The entry timestamp is taken from the
// payload's timestamp field when it parses, otherwise from the current time.
func (p *Persistent) Write(ctx context.Context, key string, payload domain.Envelope) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("cache write failed: encoding payload", "key", key, "error", err)
		return false
	}

	now := p.clock.Now().UTC()
	ts, ok := p.normalizer.Normalize(payload[domain.FieldTimestamp])
	if !ok {
		ts = now
	}

	version := 1
	if prev, err := p.backend.Get(ctx, key); err == nil {
		version = prev.DatasetVersion + 1
	}

	entry := Entry{
		Key:            key,
		Payload:        data,
		Timestamp:      ts,
		DatasetVersion: version,
		WrittenAt:      now,
	}
	if err := p.backend.Put(ctx, entry); err != nil {
		slog.Error("cache write failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes the entry for key. It returns false if nothing was removed.
func (p *Persistent) Delete(ctx context.Context, key string) bool {
	if err := p.backend.Delete(ctx, key); err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("cache delete failed", "key", key, "error", err)
		}
		return false
	}
	return true
}

// List describes every persisted entry. Backend errors yield an empty list.
func (p *Persistent) List(ctx context.Context) []Info {
	infos, err := p.backend.List(ctx)
	if err != nil {
		slog.Warn("cache list failed", "error", err)
		return nil
	}
	return infos
}

// Clear deletes every entry and returns how many were removed.
func (p *Persistent) Clear(ctx context.Context) int {
	removed := 0
	for _, info := range p.List(ctx) {
		if p.Delete(ctx, info.Key) {
			removed++
		}
	}
	return removed
}

// Age returns how long ago the entry was written.
func (p *Persistent) Age(e *Entry) time.Duration {
	return p.clock.Since(e.WrittenAt)
}

// recordCount counts records in a raw payload for listings.
func recordCount(payload []byte) int {
	env, err := domain.DecodeEnvelope(payload)
	if err != nil {
		return 0
	}
	return env.RecordCount()
}
