package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitfsorg/libshare-go/multihash"
)

// MaxContentResponseSize is the maximum allowed response body size for content
// fetches (1 GB). This prevents memory exhaustion from malicious endpoints.
const MaxContentResponseSize = 1 << 30

// BlobPathPrefix is the URL prefix gateways serve blobs under.
const BlobPathPrefix = "/_libshare/blob/"

// ContentResolver fetches blobs from the local store and then from gateway
// endpoints, verifying every blob against its locator before returning it.
// It implements BlobStore so callers can use it in place of the local store.
type ContentResolver struct {
	Store     BlobStore    // local content-addressed storage
	Endpoints []string     // gateway base URLs (e.g. "http://localhost:8080")
	Client    *http.Client // HTTP client for remote fetches; nil uses default
}

var _ BlobStore = (*ContentResolver)(nil)

// NewContentResolver creates a ContentResolver with the given local store.
func NewContentResolver(store BlobStore, endpoints ...string) *ContentResolver {
	return &ContentResolver{
		Store:     store,
		Endpoints: endpoints,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch retrieves the blob for loc, trying sources in order:
//  1. Local store
//  2. Gateway endpoints (GET {base}/_libshare/blob/{locator})
//
// Bytes that do not hash to loc are never returned. If every source that had
// the blob served mismatching bytes, the error wraps
// multihash.ErrIntegrityMismatch; if no source had it, ErrNotFound.
func (r *ContentResolver) Fetch(ctx context.Context, loc multihash.Locator) ([]byte, error) {
	if err := validateLocator(loc); err != nil {
		return nil, err
	}

	var mismatch error

	// 1. Try local storage first.
	if r.Store != nil {
		data, err := r.Store.Get(ctx, loc)
		switch {
		case err == nil:
			if verr := multihash.Verify(loc, data); verr != nil {
				mismatch = fmt.Errorf("resolver: local store: %w", verr)
			} else {
				return data, nil
			}
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("resolver: local store: %w", err)
		}
	}

	// 2. Try gateway endpoints.
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	for _, ep := range r.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.fetchFromEndpoint(ctx, client, ep, loc)
		if err != nil {
			continue
		}
		if verr := multihash.Verify(loc, data); verr != nil {
			mismatch = fmt.Errorf("resolver: endpoint %s: %w", ep, verr)
			continue
		}
		// Cache locally only when the local store addresses it the same way.
		if r.Store != nil {
			if cached, err := r.Store.Put(ctx, data); err == nil && !cached.Equal(loc) {
				_ = r.Store.Delete(ctx, cached)
			}
		}
		return data, nil
	}

	if mismatch != nil {
		return nil, mismatch
	}
	return nil, fmt.Errorf("resolver: %w: %s", ErrNotFound, loc)
}

// fetchFromEndpoint fetches a blob from a single gateway.
func (r *ContentResolver) fetchFromEndpoint(ctx context.Context, client *http.Client, baseURL string, loc multihash.Locator) ([]byte, error) {
	url := baseURL + BlobPathPrefix + loc.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: endpoint %s: HTTP %d", baseURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentResponseSize))
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: read body: %w", baseURL, err)
	}
	return data, nil
}

// Put stores data in the local store.
func (r *ContentResolver) Put(ctx context.Context, data []byte) (multihash.Locator, error) {
	if r.Store == nil {
		return multihash.Locator{}, fmt.Errorf("resolver: %w: no local store", ErrIOFailure)
	}
	return r.Store.Put(ctx, data)
}

// Get is Fetch.
func (r *ContentResolver) Get(ctx context.Context, loc multihash.Locator) ([]byte, error) {
	return r.Fetch(ctx, loc)
}

// Has reports whether the local store holds loc.
func (r *ContentResolver) Has(ctx context.Context, loc multihash.Locator) (bool, error) {
	if r.Store == nil {
		return false, nil
	}
	return r.Store.Has(ctx, loc)
}

// Delete removes loc from the local store.
func (r *ContentResolver) Delete(ctx context.Context, loc multihash.Locator) error {
	if r.Store == nil {
		return fmt.Errorf("resolver: %w: %s", ErrNotFound, loc)
	}
	return r.Store.Delete(ctx, loc)
}

// NewGatewayHandler serves blobs from store at BlobPathPrefix + locator.
func NewGatewayHandler(store BlobStore) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BlobPathPrefix+"{locator}", func(w http.ResponseWriter, req *http.Request) {
		loc, err := multihash.Parse(req.PathValue("locator"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := store.Get(req.Context(), loc)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				http.NotFound(w, req)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
	return mux
}
