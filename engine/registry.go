package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	iface "FaceDetServer/interface"
	"FaceDetServer/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Entry struct {
	ID          string
	Backend     iface.Backend
	Description string
	EngineType  int
	Created     time.Time
	seq         uint64
	// lock serializes detections on this engine and guards backend swaps.
	lock *sync.Mutex
}

// Registry holds loaded engines by id.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	defaultID string
	seq       uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func (r *Registry) Add(backend iface.Backend, description string, engineType int) (string, error) {
	switch engineType {
	case 0:
		engineType = SingleThread
	case SingleThread:
	case MultiThread:
		return "", fmt.Errorf("multi-threaded engines are not supported")
	default:
		return "", fmt.Errorf("unknown engine type %#x", engineType)
	}
	id := uuid.New().String()
	r.mu.Lock()
	r.seq++
	r.entries[id] = &Entry{
		seq:         r.seq,
		lock:        &sync.Mutex{},
		ID:          id,
		Backend:     backend,
		Description: description,
		EngineType:  engineType,
		Created:     time.Now(),
	}
	r.mu.Unlock()
	logger.Log().Info("engine added", zap.String("ID", id), zap.String("Description", description))
	return id, nil
}

// SetDefault marks id as the engine used when a caller names none.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	r.defaultID = id
	return nil
}

func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Get looks up id; an empty id selects the default engine.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.defaultID
		if id == "" {
			return Entry{}, fmt.Errorf("%w: no default engine", ErrEngineNotFound)
		}
	}
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	return *e, nil
}

// Replace swaps the backend of id once any running detection on it has
// finished, then destroys the old backend.
func (r *Registry) Replace(id string, backend iface.Backend) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	e.lock.Lock()
	r.mu.Lock()
	if r.entries[id] != e {
		r.mu.Unlock()
		e.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	old := e.Backend
	e.Backend = backend
	r.mu.Unlock()
	e.lock.Unlock()
	old.Destroy()
	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	e.lock.Lock()
	r.mu.Lock()
	if r.entries[id] != e {
		r.mu.Unlock()
		e.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	delete(r.entries, id)
	if r.defaultID == id {
		r.defaultID = ""
	}
	r.mu.Unlock()
	e.lock.Unlock()
	e.Backend.Destroy()
	logger.Log().Info("engine destroyed", zap.String("ID", id))
	return nil
}

// Engine returns a Target that resolves id (empty for the default engine)
// when the detection runs. Detections on one engine run one at a time.
func (r *Registry) Engine(id string) Target {
	return engineRef{registry: r, id: id}
}

type engineRef struct {
	registry *Registry
	id       string
}

func (ref engineRef) Detect(img iface.ImageData) (iface.Detection, error) {
	r := ref.registry
	r.mu.RLock()
	id := ref.id
	if id == "" {
		id = r.defaultID
	}
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		if ref.id == "" {
			return iface.Detection{}, fmt.Errorf("%w: no default engine", ErrEngineNotFound)
		}
		return iface.Detection{}, fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	r.mu.RLock()
	backend, live := e.Backend, r.entries[id] == e
	r.mu.RUnlock()
	if !live {
		return iface.Detection{}, fmt.Errorf("%w: %s", ErrEngineNotFound, id)
	}
	return backend.Detect(img)
}

// List returns all engines ordered by creation time.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// Close destroys every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.defaultID = ""
	r.mu.Unlock()
	for _, e := range entries {
		e.Backend.Destroy()
	}
}
