package backend

import (
	"context"
	"fmt"
	"sync"
)

// MemoryObjectStore is an in-process ObjectStore.
type MemoryObjectStore struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemoryObjectStore(baseURL string) *MemoryObjectStore {
	return &MemoryObjectStore{BaseURL: baseURL, objects: make(map[string]memObject)}
}

func (s *MemoryObjectStore) Upload(_ context.Context, bucket, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := bucket + "/" + key
	if _, exists := s.objects[name]; exists {
		return fmt.Errorf("upload %s: %w", name, ErrExists)
	}
	s.objects[name] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryObjectStore) Remove(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := bucket + "/" + key
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	delete(s.objects, name)
	return nil
}

func (s *MemoryObjectStore) PublicURL(bucket, key string) string {
	return s.BaseURL + "/" + bucket + "/" + key
}

// Object returns the stored bytes and content type.
func (s *MemoryObjectStore) Object(bucket, key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[bucket+"/"+key]
	return obj.data, obj.contentType, ok
}

// Len returns the number of stored objects.
func (s *MemoryObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
