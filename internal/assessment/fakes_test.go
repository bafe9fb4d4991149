package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu        sync.Mutex
	record    Record
	saves     int
	versions  []uint64
	saveErr   error
	loadErr   error
	clearErr  error
	cleared   int
	started   chan struct{}
	release   chan struct{}
	blockOnce sync.Once
}

func newMemStore() *memStore {
	return &memStore{record: Record{ReflectionResponses: map[string]string{}}}
}

func (s *memStore) seed(selected, prioritized []string, reflections map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reflections == nil {
		reflections = map[string]string{}
	}
	s.record = Record{SelectedValues: selected, PrioritizedValues: prioritized, ReflectionResponses: reflections}
}

// setVersion simulates another writer having stored a record at version.
func (s *memStore) setVersion(version uint64) {
	s.mu.Lock()
	s.record.Version = version
	s.mu.Unlock()
}

func (s *memStore) SelectedValues(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return cloneIDs(s.record.SelectedValues), nil
}

func (s *memStore) PrioritizedValues(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIDs(s.record.PrioritizedValues), nil
}

func (s *memStore) ReflectionResponses(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneReflections(s.record.ReflectionResponses), nil
}

func (s *memStore) SaveAssessment(_ context.Context, record Record) error {
	if s.started != nil {
		s.blockOnce.Do(func() {
			close(s.started)
			<-s.release
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.versions = append(s.versions, record.Version)
	if s.saveErr != nil {
		return s.saveErr
	}
	if record.Version < s.record.Version {
		return ErrStaleVersion
	}
	s.record = record
	return nil
}

func (s *memStore) Version(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return 0, s.loadErr
	}
	return s.record.Version, nil
}

func (s *memStore) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.record = Record{ReflectionResponses: map[string]string{}}
	return nil
}

func (s *memStore) snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type stubEntitlement struct {
	authenticated bool
	premium       bool
	err           error
}

func (e stubEntitlement) IsAuthenticated(context.Context) bool { return e.authenticated }

func (e stubEntitlement) HasFeature(_ context.Context, feature string) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	return e.premium && feature == FeatureAIInsights, nil
}

// switchableIdentity stands in for an auth provider whose account changes mid-session.
type switchableIdentity struct {
	mu    sync.Mutex
	owner string
}

func (i *switchableIdentity) set(owner string) {
	i.mu.Lock()
	i.owner = owner
	i.mu.Unlock()
}

func (i *switchableIdentity) OwnerID(context.Context) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.owner, i.owner != ""
}

// ownerStores routes to one memStore per account like the storage router does.
type ownerStores struct {
	identity *switchableIdentity
	mu       sync.Mutex
	stores   map[string]*memStore
}

func newOwnerStores(identity *switchableIdentity) *ownerStores {
	return &ownerStores{identity: identity, stores: map[string]*memStore{}}
}

func (o *ownerStores) store(owner string) *memStore {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stores[owner]
	if !ok {
		s = newMemStore()
		o.stores[owner] = s
	}
	return s
}

func (o *ownerStores) current(ctx context.Context) *memStore {
	owner, _ := o.identity.OwnerID(ctx)
	return o.store(owner)
}

func (o *ownerStores) SelectedValues(ctx context.Context) ([]string, error) {
	return o.current(ctx).SelectedValues(ctx)
}

func (o *ownerStores) PrioritizedValues(ctx context.Context) ([]string, error) {
	return o.current(ctx).PrioritizedValues(ctx)
}

func (o *ownerStores) ReflectionResponses(ctx context.Context) (map[string]string, error) {
	return o.current(ctx).ReflectionResponses(ctx)
}

func (o *ownerStores) Version(ctx context.Context) (uint64, error) {
	return o.current(ctx).Version(ctx)
}

func (o *ownerStores) SaveAssessment(ctx context.Context, record Record) error {
	return o.current(ctx).SaveAssessment(ctx, record)
}

func (o *ownerStores) ClearAll(ctx context.Context) error {
	return o.current(ctx).ClearAll(ctx)
}

type setCatalog map[string]struct{}

func (c setCatalog) Has(id string) bool {
	_, ok := c[id]
	return ok
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) attach(bus *Bus, names ...EventName) {
	for _, name := range names {
		bus.On(name, func(e Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
}

func (r *recorder) named(name EventName) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var allEvents = EventNames()

var errBoom = errors.New("boom")

type harness struct {
	machine *Machine
	store   *memStore
	events  *recorder
}

func newHarness(t *testing.T, mutate func(*Config)) harness {
	t.Helper()
	store := newMemStore()
	bus := NewBus()
	events := &recorder{}
	events.attach(bus, allEvents...)
	cfg := Config{Storage: store, Bus: bus}
	if mutate != nil {
		mutate(&cfg)
	}
	machine, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, machine.Close(context.Background()))
	})
	return harness{machine: machine, store: store, events: events}
}

func (h harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.machine.Initialize(context.Background()))
}

func (h harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.machine.Flush(context.Background()))
}
