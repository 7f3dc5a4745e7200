package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libshare-go/multihash"
)

// --- Helper functions ---

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), multihash.SHA2_256)
	require.NoError(t, err)
	return store
}

func newBoltIndex(t *testing.T) *BoltPathIndex {
	t.Helper()
	idx, err := OpenBoltPathIndex(filepath.Join(t.TempDir(), "paths.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func mustSum(t *testing.T, data []byte) multihash.Locator {
	t.Helper()
	loc, err := multihash.Sum(multihash.SHA2_256, data)
	require.NoError(t, err)
	return loc
}

// --- NewFileStore tests ---

func TestNewFileStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	store, err := NewFileStore(dir, multihash.BLAKE3)
	require.NoError(t, err)
	assert.NotNil(t, store)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewFileStore_Errors(t *testing.T) {
	_, err := NewFileStore("", multihash.SHA2_256)
	assert.ErrorIs(t, err, ErrInvalidBaseDir)

	_, err = NewFileStore(t.TempDir(), multihash.Code(0x55))
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

// --- BlobStore contract tests (run against every implementation) ---

func TestBlobStores(t *testing.T) {
	stores := map[string]func(t *testing.T) BlobStore{
		"file": func(t *testing.T) BlobStore { return newTestStore(t) },
		"mem":  func(t *testing.T) BlobStore { return NewMemStore(multihash.SHA2_256) },
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("put get", func(t *testing.T) {
				s := mk(t)
				loc, err := s.Put(ctx, []byte("hello"))
				require.NoError(t, err)
				assert.True(t, loc.Equal(mustSum(t, []byte("hello"))))

				got, err := s.Get(ctx, loc)
				require.NoError(t, err)
				assert.Equal(t, []byte("hello"), got)
			})

			t.Run("content addressed", func(t *testing.T) {
				s := mk(t)
				a, err := s.Put(ctx, []byte("same"))
				require.NoError(t, err)
				b, err := s.Put(ctx, []byte("same"))
				require.NoError(t, err)
				c, err := s.Put(ctx, []byte("different"))
				require.NoError(t, err)
				assert.True(t, a.Equal(b))
				assert.False(t, a.Equal(c))
			})

			t.Run("not found", func(t *testing.T) {
				s := mk(t)
				_, err := s.Get(ctx, mustSum(t, []byte("absent")))
				assert.ErrorIs(t, err, ErrNotFound)

				ok, err := s.Has(ctx, mustSum(t, []byte("absent")))
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("delete", func(t *testing.T) {
				s := mk(t)
				loc, err := s.Put(ctx, []byte("gone soon"))
				require.NoError(t, err)
				require.NoError(t, s.Delete(ctx, loc))

				_, err = s.Get(ctx, loc)
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, s.Delete(ctx, loc), ErrNotFound)
			})

			t.Run("empty payload", func(t *testing.T) {
				s := mk(t)
				loc, err := s.Put(ctx, []byte{})
				require.NoError(t, err)
				got, err := s.Get(ctx, loc)
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("cancelled context", func(t *testing.T) {
				s := mk(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := s.Put(cctx, []byte("x"))
				assert.ErrorIs(t, err, context.Canceled)
			})
		})
	}
}

func TestFileStore_InvalidLocator(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), multihash.Locator{})
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestFileStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := map[string]bool{}
	for _, data := range []string{"a", "b", "c"} {
		loc, err := s.Put(ctx, []byte(data))
		require.NoError(t, err)
		want[loc.String()] = true
	}

	locs, err := s.List()
	require.NoError(t, err)
	require.Len(t, locs, 3)
	for _, loc := range locs {
		assert.True(t, want[loc.String()])
	}
}

func TestFileStore_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Put(ctx, []byte{byte(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	locs, err := s.List()
	require.NoError(t, err)
	assert.Len(t, locs, 16)
}

// --- PathIndex tests ---

func TestPathIndexes(t *testing.T) {
	indexes := map[string]func(t *testing.T) PathIndex{
		"mem":  func(t *testing.T) PathIndex { return NewMemPathIndex() },
		"bolt": func(t *testing.T) PathIndex { return newBoltIndex(t) },
	}

	for name, mk := range indexes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			idx := mk(t)
			loc := mustSum(t, []byte("key blob"))
			other := mustSum(t, []byte("other blob"))

			require.NoError(t, idx.Link(ctx, "root/alice", loc))
			require.NoError(t, idx.Link(ctx, "root/bob", other))
			require.NoError(t, idx.Link(ctx, "elsewhere/carol", other))

			got, err := idx.Resolve(ctx, "root/alice")
			require.NoError(t, err)
			assert.True(t, got.Equal(loc))

			paths, err := idx.List(ctx, "root/")
			require.NoError(t, err)
			assert.Equal(t, []string{"root/alice", "root/bob"}, paths)

			require.NoError(t, idx.Unlink(ctx, "root/alice"))
			_, err = idx.Resolve(ctx, "root/alice")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, idx.Unlink(ctx, "root/alice"), ErrNotFound)

			assert.ErrorIs(t, idx.Link(ctx, "", loc), ErrInvalidPath)
			assert.ErrorIs(t, idx.Link(ctx, "x", multihash.Locator{}), ErrInvalidLocator)
		})
	}
}

func TestBoltPathIndex_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "paths.db")
	loc := mustSum(t, []byte("persisted"))

	idx, err := OpenBoltPathIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Link(ctx, "p", loc))
	require.NoError(t, idx.Close())

	idx, err = OpenBoltPathIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	got, err := idx.Resolve(ctx, "p")
	require.NoError(t, err)
	assert.True(t, got.Equal(loc))
}

// --- ContentResolver tests ---

func TestContentResolver_LocalHit(t *testing.T) {
	ctx := context.Background()
	local := NewMemStore(multihash.SHA2_256)
	loc, err := local.Put(ctx, []byte("local"))
	require.NoError(t, err)

	r := NewContentResolver(local)
	got, err := r.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), got)
}

func TestContentResolver_RemoteFetchAndCache(t *testing.T) {
	ctx := context.Background()
	remote := NewMemStore(multihash.SHA2_256)
	loc, err := remote.Put(ctx, []byte("remote blob"))
	require.NoError(t, err)

	srv := httptest.NewServer(NewGatewayHandler(remote))
	defer srv.Close()

	local := NewMemStore(multihash.SHA2_256)
	r := NewContentResolver(local, srv.URL)

	got, err := r.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote blob"), got)

	ok, err := local.Has(ctx, loc)
	require.NoError(t, err)
	assert.True(t, ok, "verified remote blobs are cached locally")
}

func TestContentResolver_RejectsTamperedRemote(t *testing.T) {
	ctx := context.Background()
	loc := mustSum(t, []byte("genuine"))

	evil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("forged"))
	}))
	defer evil.Close()

	local := NewMemStore(multihash.SHA2_256)
	r := NewContentResolver(local, evil.URL)

	_, err := r.Fetch(ctx, loc)
	assert.ErrorIs(t, err, multihash.ErrIntegrityMismatch)
	assert.Equal(t, 0, local.Len(), "tampered bytes are never cached")
}

func TestContentResolver_FallsThroughToHonestGateway(t *testing.T) {
	ctx := context.Background()
	honest := NewMemStore(multihash.SHA2_256)
	loc, err := honest.Put(ctx, []byte("genuine"))
	require.NoError(t, err)

	evil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("forged"))
	}))
	defer evil.Close()
	good := httptest.NewServer(NewGatewayHandler(honest))
	defer good.Close()

	r := NewContentResolver(NewMemStore(multihash.SHA2_256), evil.URL, good.URL)
	got, err := r.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("genuine"), got)
}

func TestContentResolver_NotFound(t *testing.T) {
	srv := httptest.NewServer(NewGatewayHandler(NewMemStore(multihash.SHA2_256)))
	defer srv.Close()

	r := NewContentResolver(NewMemStore(multihash.SHA2_256), srv.URL)
	_, err := r.Fetch(context.Background(), mustSum(t, []byte("nowhere")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayHandler_BadLocator(t *testing.T) {
	srv := httptest.NewServer(NewGatewayHandler(NewMemStore(multihash.SHA2_256)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + BlobPathPrefix + "0OIl")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
