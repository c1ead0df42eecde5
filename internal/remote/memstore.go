package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store and Presigner. Failures can be injected per
// key and for listing.
type MemStore struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	failures map[string]error
	listErr  error
	gets     map[string]int
}

// NewMemStore returns an empty in-memory bucket.
func NewMemStore(bucket string) *MemStore {
	return &MemStore{
		bucket:   bucket,
		objects:  make(map[string][]byte),
		failures: make(map[string]error),
		gets:     make(map[string]int),
	}
}

// Put stores data under key.
func (m *MemStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// FailGet makes every Get of key return err until cleared with a nil err.
func (m *MemStore) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// FailList makes List return err until cleared with a nil err.
func (m *MemStore) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// Gets returns how many times Get was called, across all keys.
func (m *MemStore) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.gets {
		n += c
	}
	return n
}

// List returns the sorted keys under prefix.
func (m *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, newError("list", prefix, false, m.listErr)
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a reader over a copy of the stored object.
func (m *MemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError("get", key, false, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets[key]++
	if err, ok := m.failures[key]; ok {
		return nil, newError("get", key, false, err)
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, newError("get", key, true, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Presign returns a mem:// URL carrying the method and expiry.
func (m *MemStore) Presign(_ context.Context, key string, expiry time.Duration, method Method) (string, error) {
	if method != MethodGet && method != MethodPut {
		return "", newError("presign", key, false, fmt.Errorf("unsupported method %q", method))
	}
	q := url.Values{}
	q.Set("method", string(method))
	q.Set("expires", fmt.Sprintf("%d", int(expiry.Seconds())))
	u := url.URL{Scheme: "mem", Host: m.bucket, Path: "/" + key, RawQuery: q.Encode()}
	return u.String(), nil
}
