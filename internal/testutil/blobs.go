package testutil

import (
	"context"
	"fmt"
	"sync"

	"rollcall/internal/apperr"
	"rollcall/internal/objectstore"
)

// MemoryBlobs is an in-memory objectstore.Store.
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string

	// FailUpload and FailDelete make the matching calls return ErrStorage.
	FailUpload bool
	FailDelete bool
	Deletes    []string
}

var _ objectstore.Store = (*MemoryBlobs)(nil)

// NewMemoryBlobs returns an empty store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: map[string][]byte{}, types: map[string]string{}}
}

func (b *MemoryBlobs) Name() string { return "memory" }

func (b *MemoryBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailUpload {
		return "", fmt.Errorf("%w: upload %s refused", apperr.ErrStorage, key)
	}
	if _, ok := b.blobs[key]; ok {
		return "", fmt.Errorf("%w: %s already exists", apperr.ErrStorage, key)
	}
	b.blobs[key] = append([]byte(nil), data...)
	b.types[key] = contentType
	return b.PublicURL(key), nil
}

func (b *MemoryBlobs) Overwrite(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailUpload {
		return "", fmt.Errorf("%w: overwrite %s refused", apperr.ErrStorage, key)
	}
	b.blobs[key] = append([]byte(nil), data...)
	b.types[key] = contentType
	return b.PublicURL(key), nil
}

func (b *MemoryBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes = append(b.Deletes, key)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", apperr.ErrStorage, key, err)
	}
	if b.FailDelete {
		return fmt.Errorf("%w: delete %s refused", apperr.ErrStorage, key)
	}
	delete(b.blobs, key)
	delete(b.types, key)
	return nil
}

func (b *MemoryBlobs) PublicURL(key string) string {
	return "https://blobs.test/faces/" + key
}

// Get returns the stored content and content type for key.
func (b *MemoryBlobs) Get(key string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	return data, b.types[key], ok
}

// DeleteCalls returns the keys passed to Delete so far.
func (b *MemoryBlobs) DeleteCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Deletes...)
}

// Len returns the number of stored blobs.
func (b *MemoryBlobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}
