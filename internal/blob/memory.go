package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	info    Info
	payload []byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Driver() Driver { return DriverMemory }

// Put stores a new immutable object under key.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if strings.TrimSpace(key) == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return Info{}, fmt.Errorf("object %s already exists", key)
	}
	info := Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objects[key] = memoryObject{info: info, payload: append([]byte(nil), payload...)}
	return info, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("object %s: %w", key, os.ErrNotExist)
	}
	payload := append([]byte(nil), obj.payload...)
	return obj.info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *MemoryStore) Head(ctx context.Context, key string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Info{}, fmt.Errorf("object %s: %w", key, os.ErrNotExist)
	}
	return obj.info, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.objects[key]
	delete(s.objects, key)
	return existed, nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.objects))
	for key, obj := range s.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a stub URL; in-memory objects are process-local.
func (s *MemoryStore) PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %s: %w", key, os.ErrNotExist)
	}
	return fmt.Sprintf("memory://%s", key), nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
