package registry

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libshare-go/directory"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
	"github.com/bitfsorg/libshare-go/multihash"
)

// --- Helpers ---

type fixture struct {
	ledger  *ledger.BoltLedger
	dir     *directory.MemDirectory
	adapter *Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := ledger.OpenBoltLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	dir := directory.NewMemDirectory(true)
	return &fixture{ledger: l, dir: dir, adapter: New(l, dir, nil)}
}

// user generates and registers an identity.
func (f *fixture) user(t *testing.T) identity.Identity {
	t.Helper()
	kp, err := identity.Generate(true)
	require.NoError(t, err)
	_, err = f.dir.Register(context.Background(), kp.PublicKey)
	require.NoError(t, err)
	return kp.Identity
}

func triple(t *testing.T, seed string) multihash.Triple {
	t.Helper()
	loc, err := multihash.Sum(multihash.SHA2_256, []byte(seed))
	require.NoError(t, err)
	tr, err := loc.Triple()
	require.NoError(t, err)
	return tr
}

func (f *fixture) create(t *testing.T, owner identity.Identity, name string) ledger.FileID {
	t.Helper()
	id, err := f.adapter.Create(context.Background(), owner, triple(t, name), sha256.Sum256([]byte(name)), name)
	require.NoError(t, err)
	return id
}

func (f *fixture) share(t *testing.T, from identity.Identity, id ledger.FileID, to identity.Identity) {
	t.Helper()
	require.NoError(t, f.adapter.Share(context.Background(), from, id, to, triple(t, string(id)+string(to))))
}

func (f *fixture) views(t *testing.T, who identity.Identity) *Views {
	t.Helper()
	v, err := f.adapter.Views(context.Background(), who)
	require.NoError(t, err)
	return v
}

// --- Share precondition tests ---

func TestCheckShare_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, alice, stranger := f.user(t), f.user(t), f.user(t)
	id := f.create(t, owner, "f")
	f.share(t, owner, id, alice)

	unregistered, err := identity.Generate(true)
	require.NoError(t, err)

	tests := []struct {
		name      string
		caller    identity.Identity
		recipient identity.Identity
	}{
		{"already listed", owner, alice},
		{"share to owner", alice, owner},
		{"caller not authorized", stranger, f.user(t)},
		{"recipient not in directory", owner, unregistered.Identity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.adapter.CheckShare(ctx, tt.caller, id, tt.recipient)
			assert.ErrorIs(t, err, ErrPreconditionFailed)

			err = f.adapter.Share(ctx, tt.caller, id, tt.recipient, triple(t, "k"))
			assert.ErrorIs(t, err, ErrPreconditionFailed)
		})
	}

	_, err = f.adapter.CheckShare(ctx, owner, id, unregistered.Identity)
	assert.ErrorIs(t, err, directory.ErrNotFound)

	recipients, err := f.ledger.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice}, recipients, "no ledger mutation on precondition failure")
}

func TestCheckShare_ReturnsRecipientKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t)
	kp, err := identity.Generate(true)
	require.NoError(t, err)
	_, err = f.dir.Register(ctx, kp.PublicKey)
	require.NoError(t, err)

	id := f.create(t, owner, "f")
	pub, err := f.adapter.CheckShare(ctx, owner, id, kp.Identity)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey.Compressed(), pub.Compressed())
}

// --- Unshare tests ---

func TestUnshare_IndexRemovalConsistency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, a, b, c := f.user(t), f.user(t), f.user(t), f.user(t)
	id := f.create(t, owner, "f")
	f.share(t, owner, id, a)
	f.share(t, owner, id, b)
	f.share(t, owner, id, c)

	require.NoError(t, f.adapter.Unshare(ctx, owner, id, b))
	require.NoError(t, f.adapter.Unshare(ctx, owner, id, a))

	recipients, err := f.adapter.Recipients(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{c}, recipients)

	assert.Equal(t, []ledger.FileID{id}, f.views(t, c).SharedWithMe)
	assert.Empty(t, f.views(t, a).SharedWithMe)
	assert.Empty(t, f.views(t, b).SharedWithMe)
	assert.Equal(t, []ledger.FileID{id}, f.views(t, owner).SharedByMe)

	sharedBy, err := f.ledger.GetSharedByMe(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, sharedBy, 1, "one shared-by entry left, for c")
}

func TestUnshare_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, alice, bob := f.user(t), f.user(t), f.user(t)
	id := f.create(t, owner, "f")
	f.share(t, owner, id, alice)

	assert.ErrorIs(t, f.adapter.Unshare(ctx, owner, id, bob), ErrPreconditionFailed)
	assert.ErrorIs(t, f.adapter.Unshare(ctx, alice, id, alice), ErrPreconditionFailed)

	require.NoError(t, f.adapter.Unshare(ctx, owner, id, alice))
	assert.ErrorIs(t, f.adapter.Unshare(ctx, owner, id, alice), ErrPreconditionFailed, "double revocation")
}

// racingLedger runs interfere once, right before the first unshare call
// reaches the ledger, to simulate a concurrent writer.
type racingLedger struct {
	ledger.Ledger
	interfere func()
	calls     int
}

func (r *racingLedger) UnshareFileRecord(ctx context.Context, from identity.Identity, id ledger.FileID, ownerIdx, recipientIdx, fileRecipientIdx int, recipient identity.Identity) error {
	r.calls++
	if r.interfere != nil {
		r.interfere()
		r.interfere = nil
	}
	return r.Ledger.UnshareFileRecord(ctx, from, id, ownerIdx, recipientIdx, fileRecipientIdx, recipient)
}

func racingSetup(t *testing.T, retries int) (*fixture, *racingLedger, identity.Identity, ledger.FileID, identity.Identity) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t)
	owner, a, b := f.user(t), f.user(t), f.user(t)
	first := f.create(t, owner, "first")
	second := f.create(t, owner, "second")
	f.share(t, owner, first, a)
	f.share(t, owner, second, b)

	racing := &racingLedger{Ledger: f.ledger}
	racing.interfere = func() {
		// Removes owner's shared-by[0], shifting second from 1 to 0.
		require.NoError(t, f.ledger.UnshareFileRecord(ctx, owner, first, 0, 0, 0, a))
	}
	f.adapter.Ledger = racing
	f.adapter.Retries = retries
	return f, racing, owner, second, b
}

func TestUnshare_RetriesStaleIndex(t *testing.T) {
	f, racing, owner, second, b := racingSetup(t, DefaultRetries)

	require.NoError(t, f.adapter.Unshare(context.Background(), owner, second, b))
	assert.Equal(t, 2, racing.calls)
	assert.Empty(t, f.views(t, b).SharedWithMe)
	assert.Empty(t, f.views(t, owner).SharedByMe)
}

func TestUnshare_NoRetries(t *testing.T) {
	f, racing, owner, second, b := racingSetup(t, 0)

	err := f.adapter.Unshare(context.Background(), owner, second, b)
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.ErrorIs(t, err, ledger.ErrStaleIndex)
	assert.Equal(t, 1, racing.calls)
	assert.Equal(t, []ledger.FileID{second}, f.views(t, b).SharedWithMe)
}

// --- Archive / restore tests ---

func TestArchiveRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, alice := f.user(t), f.user(t)
	a := f.create(t, owner, "a")
	b := f.create(t, owner, "b")
	c := f.create(t, owner, "c")
	f.share(t, owner, b, alice)

	before := f.views(t, owner)
	assert.Equal(t, []ledger.FileID{a, b, c}, before.Mine)

	require.NoError(t, f.adapter.Archive(ctx, owner, b))
	mid := f.views(t, owner)
	assert.Equal(t, []ledger.FileID{a, c}, mid.Mine)
	assert.Equal(t, []ledger.FileID{b}, mid.Archived)

	assert.ErrorIs(t, f.adapter.Archive(ctx, owner, b), ErrPreconditionFailed)
	assert.ErrorIs(t, f.adapter.Restore(ctx, owner, a), ErrPreconditionFailed)
	assert.ErrorIs(t, f.adapter.Archive(ctx, alice, a), ErrPreconditionFailed)

	require.NoError(t, f.adapter.Restore(ctx, owner, b))
	after := f.views(t, owner)
	assert.Equal(t, before.Mine, after.Mine)
	assert.Empty(t, after.Archived)

	recipients, err := f.adapter.Recipients(ctx, owner, b)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice}, recipients, "recipients unchanged by archive/restore")
}

func TestRestore_PicksFreshIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t)
	ids := []ledger.FileID{f.create(t, owner, "1"), f.create(t, owner, "2"), f.create(t, owner, "3")}
	for _, id := range ids {
		require.NoError(t, f.adapter.Archive(ctx, owner, id))
	}

	require.NoError(t, f.adapter.Restore(ctx, owner, ids[0]))
	require.NoError(t, f.adapter.Restore(ctx, owner, ids[2]))
	assert.Equal(t, []ledger.FileID{ids[1]}, f.views(t, owner).Archived)
}

// --- Reconciliation tests ---

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		uploaded   []ledger.FileID
		sharedBy   []ledger.FileID
		sharedWith []ledger.FileID
		archived   []ledger.FileID
		want       Views
	}{
		{
			name: "empty",
			want: Views{Mine: []ledger.FileID{}, SharedWithMe: []ledger.FileID{}, Archived: []ledger.FileID{}, SharedByMe: []ledger.FileID{}},
		},
		{
			name:       "double share collapses",
			sharedWith: []ledger.FileID{"x", "y", "x"},
			sharedBy:   []ledger.FileID{"p", "p", "q"},
			want:       Views{Mine: []ledger.FileID{}, SharedWithMe: []ledger.FileID{"x", "y"}, Archived: []ledger.FileID{}, SharedByMe: []ledger.FileID{"p", "q"}},
		},
		{
			name:       "archived subtracted",
			uploaded:   []ledger.FileID{"a", "b", "c"},
			sharedWith: []ledger.FileID{"s", "b"},
			archived:   []ledger.FileID{"b"},
			want:       Views{Mine: []ledger.FileID{"a", "c"}, SharedWithMe: []ledger.FileID{"s"}, Archived: []ledger.FileID{"b"}, SharedByMe: []ledger.FileID{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.uploaded, tt.sharedBy, tt.sharedWith, tt.archived)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestViews_DoubleShareAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, alice := f.user(t), f.user(t)
	id := f.create(t, owner, "f")
	f.share(t, owner, id, alice)

	err := f.adapter.Share(ctx, owner, id, alice, triple(t, "again"))
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, []ledger.FileID{id}, f.views(t, alice).SharedWithMe)
}
