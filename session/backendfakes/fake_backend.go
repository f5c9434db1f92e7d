package backendfakes

import (
	"context"
	"sync"

	"github.com/openlettings/auth-gateway/session"
)

var _ session.Backend = (*FakeBackend)(nil)

// FakeBackend is a scriptable session.Backend for tests. Each operation can
// be overridden per test; unset operations behave as an empty provider.
// Stub functions run outside the fake's lock, so tests may block inside
// them to provoke interleavings.
type FakeBackend struct {
	lock sync.Mutex

	CurrentSessionStub func(ctx context.Context) (*session.Session, error)
	SignInStub         func(ctx context.Context, creds session.Credentials) (*session.Session, error)
	RefreshStub        func(ctx context.Context, refreshToken string) (*session.Session, error)
	SignOutStub        func(ctx context.Context, token string) error

	currentSessionCalls int
	signInCalls         int
	refreshCalls        int
	signOutCalls        int
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (b *FakeBackend) CurrentSession(ctx context.Context) (*session.Session, error) {
	b.lock.Lock()
	b.currentSessionCalls++
	stub := b.CurrentSessionStub
	b.lock.Unlock()
	if stub == nil {
		return nil, nil
	}
	return stub(ctx)
}

func (b *FakeBackend) SignIn(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	b.lock.Lock()
	b.signInCalls++
	stub := b.SignInStub
	b.lock.Unlock()
	if stub == nil {
		return nil, nil
	}
	return stub(ctx, creds)
}

func (b *FakeBackend) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	b.lock.Lock()
	b.refreshCalls++
	stub := b.RefreshStub
	b.lock.Unlock()
	if stub == nil {
		return nil, nil
	}
	return stub(ctx, refreshToken)
}

func (b *FakeBackend) SignOut(ctx context.Context, token string) error {
	b.lock.Lock()
	b.signOutCalls++
	stub := b.SignOutStub
	b.lock.Unlock()
	if stub == nil {
		return nil
	}
	return stub(ctx, token)
}

func (b *FakeBackend) RefreshCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.refreshCalls
}

func (b *FakeBackend) SignOutCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.signOutCalls
}
