package repofakes

import (
	"context"
	"sync"

	"github.com/openlettings/auth-gateway/profiles"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

// FakeProfileRepo is an in-memory profiles.Repo for tests. Reads can be
// forced to fail via FailWith, and GetCalls counts backend reads so tests
// can assert cache-fill coalescing.
type FakeProfileRepo struct {
	lock     sync.RWMutex
	rows     map[string]*profiles.Profile
	failWith error
	getCalls int

	// BeforeGet, when set, runs inside GetByID before the row lookup. Tests
	// use it to hold reads open and provoke concurrency.
	BeforeGet func()
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		rows: make(map[string]*profiles.Profile),
	}
}

// Put stores a profile row.
func (r *FakeProfileRepo) Put(p *profiles.Profile) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rows[p.ID] = p
}

// Remove deletes a profile row.
func (r *FakeProfileRepo) Remove(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.rows, id)
}

// FailWith makes subsequent reads return err. Pass nil to restore normal
// behaviour.
func (r *FakeProfileRepo) FailWith(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failWith = err
}

// GetCalls returns how many times GetByID has been invoked.
func (r *FakeProfileRepo) GetCalls() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.getCalls
}

func (r *FakeProfileRepo) GetByID(ctx context.Context, id string) (*profiles.Profile, error) {
	r.lock.Lock()
	r.getCalls++
	before := r.BeforeGet
	failWith := r.failWith
	r.lock.Unlock()

	if before != nil {
		before()
	}
	if failWith != nil {
		return nil, failWith
	}

	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}
