package ledger

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/multihash"
)

func tempLedger(t *testing.T) *BoltLedger {
	t.Helper()
	l, err := OpenBoltLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newIdentity(t *testing.T) identity.Identity {
	t.Helper()
	kp, err := identity.Generate(true)
	require.NoError(t, err)
	return kp.Identity
}

func testTriple(t *testing.T, seed string) multihash.Triple {
	t.Helper()
	loc, err := multihash.Sum(multihash.SHA2_256, []byte(seed))
	require.NoError(t, err)
	tr, err := loc.Triple()
	require.NoError(t, err)
	return tr
}

func createFile(t *testing.T, l *BoltLedger, owner identity.Identity, name string) FileID {
	t.Helper()
	id, err := l.CreateFileRecord(context.Background(), owner, testTriple(t, name), sha256.Sum256([]byte(name)), name)
	require.NoError(t, err)
	return id
}

func share(t *testing.T, l *BoltLedger, from identity.Identity, id FileID, to identity.Identity) {
	t.Helper()
	require.NoError(t, l.ShareFileRecord(context.Background(), from, id, to, testTriple(t, string(id)+to.String())))
}

// ---------------------------------------------------------------------------
// Create / read tests
// ---------------------------------------------------------------------------

func TestCreateFileRecord(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner := newIdentity(t)

	id := createFile(t, l, owner, "report.pdf")
	_, err := ParseFileID(id.String())
	require.NoError(t, err)

	rec, err := l.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, owner, rec.Owner)
	assert.Equal(t, "report.pdf", rec.Name)
	assert.Equal(t, testTriple(t, "report.pdf"), rec.Content)
	assert.Equal(t, sha256.Sum256([]byte("report.pdf")), rec.ContentHash)
	assert.Empty(t, rec.Recipients)
	assert.False(t, rec.Archived)
	assert.False(t, rec.CreatedAt.IsZero())

	uploaded, err := l.GetUploaded(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{id}, uploaded)

	content, err := l.GetFileDetail(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, content)
}

func TestCreateFileRecord_Rejections(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)

	_, err := l.CreateFileRecord(ctx, "not-an-address", testTriple(t, "x"), [32]byte{}, "x")
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = l.CreateFileRecord(ctx, newIdentity(t), multihash.Triple{}, [32]byte{}, "x")
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.ErrorIs(t, err, ErrInvalidTriple)
}

func TestGetRecord_NotFound(t *testing.T) {
	l := tempLedger(t)
	_, err := l.GetRecord(context.Background(), NewFileID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseFileID(t *testing.T) {
	_, err := ParseFileID("nope")
	assert.ErrorIs(t, err, ErrInvalidFileID)

	id := NewFileID()
	got, err := ParseFileID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestBoltLedger_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	owner := newIdentity(t)

	l, err := OpenBoltLedger(path)
	require.NoError(t, err)
	id := createFile(t, l, owner, "a")
	require.NoError(t, l.Close())

	l, err = OpenBoltLedger(path)
	require.NoError(t, err)
	defer l.Close()

	rec, err := l.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Name)
}

// ---------------------------------------------------------------------------
// Share tests
// ---------------------------------------------------------------------------

func TestShareFileRecord(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice := newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")

	key := testTriple(t, "alice-key")
	require.NoError(t, l.ShareFileRecord(ctx, owner, id, alice, key))

	recipients, err := l.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice}, recipients)

	sharedBy, err := l.GetSharedByMe(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{id}, sharedBy)

	sharedWith, err := l.GetSharedWithMe(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []FileID{id}, sharedWith)

	content, gotKey, err := l.GetSharedFileDetail(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, testTriple(t, "f"), content)
	assert.Equal(t, key, gotKey)

	_, err = l.GetFileDetail(ctx, alice, id)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestShareFileRecord_Rejections(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice, mallory := newIdentity(t), newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")
	share(t, l, owner, id, alice)

	tests := []struct {
		name      string
		from      identity.Identity
		id        FileID
		recipient identity.Identity
		want      error
	}{
		{"duplicate recipient", owner, id, alice, ErrAlreadyShared},
		{"share to owner", owner, id, owner, ErrAlreadyShared},
		{"stranger shares", mallory, id, newIdentity(t), ErrNotAuthorized},
		{"unknown file", owner, NewFileID(), mallory, ErrNotFound},
		{"bad recipient", owner, id, "bogus", ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.ShareFileRecord(ctx, tt.from, tt.id, tt.recipient, testTriple(t, "k"))
			assert.ErrorIs(t, err, ErrTransactionRejected)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	recipients, err := l.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice}, recipients, "rejected shares change nothing")
}

func TestShareFileRecord_ByRecipient(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice, bob := newIdentity(t), newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")
	share(t, l, owner, id, alice)
	share(t, l, alice, id, bob)

	recipients, err := l.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice, bob}, recipients)

	sharedBy, err := l.GetSharedByMe(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{id, id}, sharedBy, "one entry per share, kept on the owner")
}

// ---------------------------------------------------------------------------
// Unshare tests
// ---------------------------------------------------------------------------

func TestUnshareFileRecord(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice, bob := newIdentity(t), newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")
	share(t, l, owner, id, alice)
	share(t, l, owner, id, bob)

	require.NoError(t, l.UnshareFileRecord(ctx, owner, id, 0, 0, 0, alice))

	recipients, err := l.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{bob}, recipients)

	sharedBy, err := l.GetSharedByMe(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{id}, sharedBy)

	sharedWith, err := l.GetSharedWithMe(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, sharedWith)

	_, _, err = l.GetSharedFileDetail(ctx, alice, id)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestUnshareFileRecord_StaleIndex(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice, bob := newIdentity(t), newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")
	share(t, l, owner, id, alice)
	share(t, l, owner, id, bob)

	// bob sits at recipients[1]; index 0 is alice.
	err := l.UnshareFileRecord(ctx, owner, id, 1, 0, 0, bob)
	assert.ErrorIs(t, err, ErrTransactionRejected)
	assert.ErrorIs(t, err, ErrStaleIndex)

	err = l.UnshareFileRecord(ctx, owner, id, 5, 0, 1, bob)
	assert.ErrorIs(t, err, ErrStaleIndex)

	err = l.UnshareFileRecord(ctx, owner, id, 1, -1, 1, bob)
	assert.ErrorIs(t, err, ErrStaleIndex)

	recipients, err := l.GetRecipients(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []identity.Identity{alice, bob}, recipients, "rejected unshare changes nothing")

	sharedBy, err := l.GetSharedByMe(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, sharedBy, 2)
}

func TestUnshareFileRecord_OtherFileAtIndex(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice := newIdentity(t), newIdentity(t)
	first := createFile(t, l, owner, "first")
	second := createFile(t, l, owner, "second")
	share(t, l, owner, first, alice)
	share(t, l, owner, second, alice)

	// index 0 of both lists holds first, not second.
	err := l.UnshareFileRecord(ctx, owner, second, 0, 0, 0, alice)
	assert.ErrorIs(t, err, ErrStaleIndex)

	require.NoError(t, l.UnshareFileRecord(ctx, owner, second, 1, 1, 0, alice))
	sharedWith, err := l.GetSharedWithMe(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []FileID{first}, sharedWith)
}

func TestUnshareFileRecord_Rejections(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice, bob := newIdentity(t), newIdentity(t), newIdentity(t)
	id := createFile(t, l, owner, "f")
	share(t, l, owner, id, alice)

	err := l.UnshareFileRecord(ctx, alice, id, 0, 0, 0, alice)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = l.UnshareFileRecord(ctx, owner, id, 0, 0, 0, bob)
	assert.ErrorIs(t, err, ErrNotShared)

	err = l.UnshareFileRecord(ctx, owner, NewFileID(), 0, 0, 0, alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ---------------------------------------------------------------------------
// Archive / restore tests
// ---------------------------------------------------------------------------

func TestArchiveRestore(t *testing.T) {
	ctx := context.Background()
	l := tempLedger(t)
	owner, alice := newIdentity(t), newIdentity(t)
	a := createFile(t, l, owner, "a")
	b := createFile(t, l, owner, "b")

	require.NoError(t, l.ArchiveFileRecord(ctx, owner, a))
	require.NoError(t, l.ArchiveFileRecord(ctx, owner, b))

	archived, err := l.GetArchived(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{a, b}, archived)

	uploaded, err := l.GetUploaded(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{a, b}, uploaded, "archive keeps uploaded list intact")

	err = l.ArchiveFileRecord(ctx, owner, a)
	assert.ErrorIs(t, err, ErrAlreadyArchived)

	err = l.RestoreFileRecord(ctx, owner, b, 0)
	assert.ErrorIs(t, err, ErrStaleIndex)

	require.NoError(t, l.RestoreFileRecord(ctx, owner, b, 1))
	archived, err = l.GetArchived(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []FileID{a}, archived)

	rec, err := l.GetRecord(ctx, b)
	require.NoError(t, err)
	assert.False(t, rec.Archived)

	err = l.RestoreFileRecord(ctx, owner, b, 0)
	assert.ErrorIs(t, err, ErrNotArchived)

	err = l.ArchiveFileRecord(ctx, alice, b)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestWrites_CancelledContext(t *testing.T) {
	l := tempLedger(t)
	owner := newIdentity(t)
	id := createFile(t, l, owner, "f")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.ArchiveFileRecord(ctx, owner, id), context.Canceled)
	_, err := l.GetUploaded(ctx, owner)
	assert.ErrorIs(t, err, context.Canceled)
}
