package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"panelbench/internal/blob"
)

// ObjectStore persists rendered export payloads and returns stored artifact
// descriptions.
type ObjectStore interface {
	Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]any) (Artifact, error)
	Get(ctx context.Context, key string) (Artifact, []byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Artifact, error)
}

// MemoryObjectStore keeps stored artifacts in process memory. Intended for
// tests and local development.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	artifact Artifact
	payload  []byte
}

// NewMemoryObjectStore returns an empty in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryObjectStore) Put(_ context.Context, key string, payload []byte, contentType string, metadata map[string]any) (Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return Artifact{}, errors.New("object key required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; exists {
		return Artifact{}, fmt.Errorf("object %s already exists", key)
	}
	artifact := Artifact{
		ID:          key,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		URL:         fmt.Sprintf("https://object-store.local/%s?token=stub", key),
		Metadata:    cloneMap(metadata),
		CreatedAt:   time.Now().UTC(),
	}
	m.objects[key] = memoryObject{artifact: artifact, payload: append([]byte(nil), payload...)}
	return artifact, nil
}

func (m *MemoryObjectStore) Get(_ context.Context, key string) (Artifact, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Artifact{}, nil, fmt.Errorf("object %s not found", key)
	}
	return obj.artifact, append([]byte(nil), obj.payload...), nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryObjectStore) List(_ context.Context, prefix string) ([]Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Artifact, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.artifact)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Objects returns a snapshot of stored payloads keyed by object key.
func (m *MemoryObjectStore) Objects() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.objects))
	for key, obj := range m.objects {
		out[key] = append([]byte(nil), obj.payload...)
	}
	return out
}

// BlobObjectStore adapts a blob.Store backend for export artifact storage.
// Stored URLs come from presigning when the backend supports it.
type BlobObjectStore struct {
	store blob.Store
}

// NewBlobObjectStore wraps a blob backend.
func NewBlobObjectStore(store blob.Store) *BlobObjectStore {
	return &BlobObjectStore{store: store}
}

func (b *BlobObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]any) (Artifact, error) {
	info, err := b.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    stringifyMetadata(metadata),
	})
	if err != nil {
		return Artifact{}, err
	}
	artifact := infoToArtifact(info)
	if url, err := b.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET"}); err == nil {
		artifact.URL = url
	} else if !errors.Is(err, blob.ErrUnsupported) {
		return Artifact{}, err
	}
	return artifact, nil
}

func (b *BlobObjectStore) Get(ctx context.Context, key string) (Artifact, []byte, error) {
	info, rc, err := b.store.Get(ctx, key)
	if err != nil {
		return Artifact{}, nil, err
	}
	defer rc.Close()
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(rc); err != nil {
		return Artifact{}, nil, err
	}
	return infoToArtifact(info), buf.Bytes(), nil
}

func (b *BlobObjectStore) Delete(ctx context.Context, key string) error {
	_, err := b.store.Delete(ctx, key)
	return err
}

func (b *BlobObjectStore) List(ctx context.Context, prefix string) ([]Artifact, error) {
	infos, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(infos))
	for _, info := range infos {
		out = append(out, infoToArtifact(info))
	}
	return out, nil
}

func infoToArtifact(info blob.Info) Artifact {
	var metadata map[string]any
	if len(info.Metadata) > 0 {
		metadata = make(map[string]any, len(info.Metadata))
		for k, v := range info.Metadata {
			metadata[k] = v
		}
	}
	return Artifact{
		ID:          info.Key,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		URL:         info.URL,
		Metadata:    metadata,
		CreatedAt:   info.LastModified,
	}
}

func stringifyMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// MemoryAuditLog retains audit entries in memory for inspection.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

// NewMemoryAuditLog returns an empty audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot of recorded entries in order.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]AuditEntry(nil), l.entries...)
}
