package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// MemoryBackend keeps exports in process memory. It is the default
// backend for demos and tests; nothing survives a restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	content map[memoryKey][]byte
	log     *slog.Logger
}

type memoryKey struct {
	id          interfaces.ContentID
	contentType interfaces.ContentType
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(log *slog.Logger) *MemoryBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryBackend{
		content: make(map[memoryKey][]byte),
		log:     log,
	}
}

// Fetch retrieves data by content ID and type.
func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.content[memoryKey{id: id, contentType: contentType}]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves data and returns its content ID.
func (b *MemoryBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	stored := make([]byte, len(data))
	copy(stored, data)

	b.mu.Lock()
	b.content[memoryKey{id: id, contentType: contentType}] = stored
	b.mu.Unlock()

	b.log.Debug("stored content in memory",
		slog.String("content_id", id.String()),
		slog.String("content_type", contentType.String()),
		slog.Int("size", len(data)))

	return id, nil
}

// Available always reports true.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this backend.
func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}

// Len returns the number of stored entries. Used by tests.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.content)
}

var _ interfaces.ExportBackend = (*MemoryBackend)(nil)
