package profiles_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/profiles/repofakes"
)

const resolverTestUserID = "user-1"

func setupResolver(t *testing.T, options ...profiles.ResolverOption) (*profiles.Resolver, *repofakes.FakeProfileRepo) {
	t.Helper()

	repo := repofakes.NewFakeProfileRepo()
	repo.Put(&profiles.Profile{
		ID:       resolverTestUserID,
		Email:    "john.doe@example.com",
		FullName: "John Doe",
		Role:     profiles.RoleLandlord,
	})

	resolver, err := profiles.NewResolver(repo, options...)
	require.NoError(t, err)
	return resolver, repo
}

func TestResolveReturnsProfile(t *testing.T) {
	resolver, _ := setupResolver(t)

	p, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, profiles.RoleLandlord, p.Role)
}

func TestResolveMissingProfileIsNilNotError(t *testing.T) {
	resolver, _ := setupResolver(t)

	p, err := resolver.Resolve(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestResolveRequiresUserID(t *testing.T) {
	resolver, _ := setupResolver(t)

	_, err := resolver.Resolve(context.Background(), "")
	require.Error(t, err)
}

func TestResolveCachesLookups(t *testing.T) {
	resolver, repo := setupResolver(t)

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), resolverTestUserID)
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.GetCalls())
}

func TestResolveCachesMissingRows(t *testing.T) {
	resolver, repo := setupResolver(t)

	for i := 0; i < 3; i++ {
		p, err := resolver.Resolve(context.Background(), "nobody")
		require.NoError(t, err)
		require.Nil(t, p)
	}
	require.Equal(t, 1, repo.GetCalls(), "a missing row is memoized like any other result")
}

func TestResolveErrorsAreNotCached(t *testing.T) {
	resolver, repo := setupResolver(t)
	repo.FailWith(errors.New("db down"))

	_, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.Error(t, err)

	repo.FailWith(nil)
	p, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestInvalidateForcesFreshRead(t *testing.T) {
	resolver, repo := setupResolver(t)

	_, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)

	repo.Put(&profiles.Profile{ID: resolverTestUserID, Role: profiles.RoleAdmin})
	resolver.Invalidate(resolverTestUserID)

	p, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)
	require.Equal(t, profiles.RoleAdmin, p.Role)
	require.Equal(t, 2, repo.GetCalls())
}

func TestConcurrentResolvesCoalesce(t *testing.T) {
	resolver, repo := setupResolver(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 16)
	repo.BeforeGet = func() {
		entered <- struct{}{}
		<-release
	}

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := resolver.Resolve(context.Background(), resolverTestUserID)
			require.NoError(t, err)
			require.NotNil(t, p)
		}()
	}

	<-entered // at least one caller reached the repo
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, repo.GetCalls(), "concurrent first-time lookups share a single backend read")
}

func TestTTLExpiresCachedEntries(t *testing.T) {
	now := time.Now()
	resolver, repo := setupResolver(t,
		profiles.WithTTL(time.Minute),
		profiles.WithNowTime(func() time.Time { return now }),
	)

	_, err := resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)
	require.Equal(t, 1, repo.GetCalls())

	now = now.Add(2 * time.Minute)
	_, err = resolver.Resolve(context.Background(), resolverTestUserID)
	require.NoError(t, err)
	require.Equal(t, 2, repo.GetCalls(), "an entry older than the TTL triggers a fresh read")
}
