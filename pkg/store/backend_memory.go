package store

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryBackend is a size-limited, in-memory Backend.
// It mirrors the ordering semantics of the SQLite backend.
type InMemoryBackend struct {
	mu             sync.Mutex
	maxRecsPerPath int
	seq            int64
	logs           map[string][]Record
}

var _ Backend = &InMemoryBackend{}

func NewInMemoryBackend(maxRecsPerPath int) *InMemoryBackend {
	if maxRecsPerPath <= 0 {
		maxRecsPerPath = 5000
	}
	return &InMemoryBackend{
		maxRecsPerPath: maxRecsPerPath,
		logs:           map[string][]Record{},
	}
}

func (b *InMemoryBackend) Close() error { return nil }

func (b *InMemoryBackend) Append(_ context.Context, path string, rec Record) (Record, error) {
	if b == nil {
		return Record{}, errors.New("in-memory backend: nil backend")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Record{}, errors.New("in-memory backend: path is empty")
	}
	if rec.Key == "" {
		return Record{}, errors.New("in-memory backend: key is empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.logs[path] {
		if existing.Key == rec.Key {
			return Record{}, errors.Errorf("in-memory backend: duplicate key %s", rec.Key)
		}
	}
	b.seq++
	rec.Seq = b.seq
	rec.Value = append([]byte(nil), rec.Value...)
	recs := append(b.logs[path], rec)
	if over := len(recs) - b.maxRecsPerPath; over > 0 {
		recs = append([]Record(nil), recs[over:]...)
	}
	b.logs[path] = recs
	return rec, nil
}

func (b *InMemoryBackend) Load(_ context.Context, path string) ([]Record, error) {
	if b == nil {
		return nil, errors.New("in-memory backend: nil backend")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	recs := b.logs[strings.TrimSpace(path)]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}
