package registry

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
)

// Views is the reconciled listing for one identity. Each slice keeps the
// first-occurrence order of its source list.
type Views struct {
	// Mine is uploaded minus archived.
	Mine []ledger.FileID

	// SharedWithMe is shared-with minus archived, without duplicates.
	SharedWithMe []ledger.FileID

	// Archived is the archived list as-is.
	Archived []ledger.FileID

	// SharedByMe is shared-by without duplicates.
	SharedByMe []ledger.FileID
}

// Views reads the four lists for who concurrently and reconciles them.
func (a *Adapter) Views(ctx context.Context, who identity.Identity) (*Views, error) {
	var uploaded, sharedBy, sharedWith, archived []ledger.FileID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		uploaded, err = a.Ledger.GetUploaded(gctx, who)
		return err
	})
	g.Go(func() (err error) {
		sharedBy, err = a.Ledger.GetSharedByMe(gctx, who)
		return err
	})
	g.Go(func() (err error) {
		sharedWith, err = a.Ledger.GetSharedWithMe(gctx, who)
		return err
	})
	g.Go(func() (err error) {
		archived, err = a.Ledger.GetArchived(gctx, who)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Reconcile(uploaded, sharedBy, sharedWith, archived), nil
}

// Reconcile builds Views from raw ledger lists.
func Reconcile(uploaded, sharedBy, sharedWith, archived []ledger.FileID) *Views {
	return &Views{
		Mine:         subtract(uploaded, archived),
		SharedWithMe: dedupe(subtract(sharedWith, archived)),
		Archived:     append([]ledger.FileID{}, archived...),
		SharedByMe:   dedupe(sharedBy),
	}
}

func subtract(list, remove []ledger.FileID) []ledger.FileID {
	drop := make(map[ledger.FileID]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	out := []ledger.FileID{}
	for _, id := range list {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(list []ledger.FileID) []ledger.FileID {
	seen := make(map[ledger.FileID]struct{}, len(list))
	out := []ledger.FileID{}
	for _, id := range list {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
