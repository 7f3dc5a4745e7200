package keyplace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/multihash"
	"github.com/bitfsorg/libshare-go/storage"
)

func newPlacer(t *testing.T) *Placer {
	t.Helper()
	return New(storage.NewMemStore(multihash.SHA2_256), storage.NewMemPathIndex())
}

func newIdentity(t *testing.T) identity.Identity {
	t.Helper()
	kp, err := identity.Generate(true)
	require.NoError(t, err)
	return kp.Identity
}

func fileLocator(t *testing.T) multihash.Locator {
	t.Helper()
	loc, err := multihash.Sum(multihash.SHA2_256, []byte("encrypted payload"))
	require.NoError(t, err)
	return loc
}

func TestPlacementPath_Deterministic(t *testing.T) {
	loc := fileLocator(t)
	alice := newIdentity(t)
	bob := newIdentity(t)

	assert.Equal(t, PlacementPath(loc, alice), PlacementPath(loc, alice))
	assert.NotEqual(t, PlacementPath(loc, alice), PlacementPath(loc, bob))
	assert.Equal(t, loc.String()+"/"+alice.String(), PlacementPath(loc, alice))
}

func TestPlace_FetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)
	loc := fileLocator(t)
	alice := newIdentity(t)

	keyLoc, err := p.Place(ctx, loc, alice, []byte("wrapped key"))
	require.NoError(t, err)
	assert.NotEqual(t, PlacementPath(loc, alice), keyLoc.String(), "content address differs from path")

	got, err := p.Fetch(ctx, loc, alice)
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped key"), got)

	got, err = p.FetchAt(ctx, keyLoc)
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped key"), got)
}

func TestFetch_NotPlaced(t *testing.T) {
	p := newPlacer(t)
	_, err := p.Fetch(context.Background(), fileLocator(t), newIdentity(t))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRevoke_FetchFailsAfter(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)
	loc := fileLocator(t)
	alice := newIdentity(t)
	bob := newIdentity(t)

	keyLoc, err := p.Place(ctx, loc, alice, []byte("alice key"))
	require.NoError(t, err)
	_, err = p.Place(ctx, loc, bob, []byte("bob key"))
	require.NoError(t, err)

	require.NoError(t, p.Revoke(ctx, loc, alice))

	_, err = p.Fetch(ctx, loc, alice)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.FetchAt(ctx, keyLoc)
	assert.ErrorIs(t, err, ErrNotFound, "revoked blob is dropped from the store")

	got, err := p.Fetch(ctx, loc, bob)
	require.NoError(t, err)
	assert.Equal(t, []byte("bob key"), got)

	assert.ErrorIs(t, p.Revoke(ctx, loc, alice), ErrNotFound)
}

func TestPlace_Errors(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)
	loc := fileLocator(t)

	_, err := p.Place(ctx, loc, "", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	_, err = p.Place(ctx, loc, newIdentity(t), nil)
	assert.ErrorIs(t, err, ErrEmptyBlob)
}

func TestPut_UnreferencedUntilLinked(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)
	loc := fileLocator(t)
	alice := newIdentity(t)

	keyLoc, err := p.Put(ctx, []byte("wrapped key"))
	require.NoError(t, err)

	_, err = p.Fetch(ctx, loc, alice)
	assert.ErrorIs(t, err, ErrNotFound, "a put blob has no placement")
	got, err := p.FetchAt(ctx, keyLoc)
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped key"), got)

	require.NoError(t, p.Link(ctx, loc, alice, keyLoc))
	resolved, err := p.Resolve(ctx, loc, alice)
	require.NoError(t, err)
	assert.True(t, keyLoc.Equal(resolved))
	got, err = p.Fetch(ctx, loc, alice)
	require.NoError(t, err)
	assert.Equal(t, []byte("wrapped key"), got)

	assert.ErrorIs(t, p.Link(ctx, loc, "", keyLoc), ErrInvalidRecipient)
	_, err = p.Put(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBlob)
}

func TestPlacements(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)
	loc := fileLocator(t)
	other, err := multihash.Sum(multihash.SHA2_256, []byte("another payload"))
	require.NoError(t, err)
	alice, bob := newIdentity(t), newIdentity(t)

	got, err := p.Placements(ctx, loc)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = p.Place(ctx, loc, alice, []byte("alice key"))
	require.NoError(t, err)
	_, err = p.Place(ctx, loc, bob, []byte("bob key"))
	require.NoError(t, err)
	_, err = p.Place(ctx, other, alice, []byte("other key"))
	require.NoError(t, err)

	got, err = p.Placements(ctx, loc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []identity.Identity{alice, bob}, got)

	require.NoError(t, p.Revoke(ctx, loc, bob))
	got, err = p.Placements(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice}, got)
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	p := newPlacer(t)

	keyLoc, err := p.Put(ctx, []byte("wrapped key"))
	require.NoError(t, err)
	require.NoError(t, p.Drop(ctx, keyLoc))
	_, err = p.FetchAt(ctx, keyLoc)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, p.Drop(ctx, keyLoc), "dropping an absent blob is a no-op")
}
