package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/session"
	"github.com/bitfsorg/libshare-go/storage"
)

// identityPath reports which identity a gateway is serving for.
const identityPath = "/_libshare/identity"

type identityResponse struct {
	Identity  identity.Identity `json:"identity"`
	PublicKey string            `json:"publicKey"`
}

// newServeMux serves local blobs and the identity of the current session.
func newServeMux(store storage.BlobStore, mgr *session.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(storage.BlobPathPrefix, storage.NewGatewayHandler(store))
	mux.HandleFunc("GET "+identityPath, func(w http.ResponseWriter, _ *http.Request) {
		s, err := mgr.Current()
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(identityResponse{
			Identity:  s.Identity,
			PublicKey: identity.PublicKeyHex(s.PublicKey()),
		})
	})
	return mux
}

// watchSessions logs each session installed in mgr until the
// subscription closes.
func watchSessions(mgr *session.Manager, logger *slog.Logger) (stop func()) {
	ch, cancel := mgr.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range ch {
			logger.Info("session replaced", "identity", s.Identity, "network", s.Network)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// reloadSession reinstalls the session from the key file. A missing key
// leaves the current session in place.
func (e *env) reloadSession(g *globalFlags, mgr *session.Manager) {
	s, err := e.session(g)
	if err != nil {
		e.logger.Warn("session not loaded", "error", err)
		return
	}
	if err := mgr.Replace(s); err != nil {
		e.logger.Warn("session not installed", "error", err)
	}
}

// runServe exposes the local blob store read-only so other clients can
// list this node as a gateway. SIGHUP reloads the identity key.
func runServe(args []string) error {
	fs, g := newFlagSet("serve")
	listen := fs.String("listen", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(g)
	if err != nil {
		return err
	}
	defer e.Close()

	mgr := session.NewManager()
	defer mgr.Close()
	stopWatch := watchSessions(mgr, e.logger)
	defer stopWatch()
	e.reloadSession(g, mgr)

	addr := e.cfg.ListenAddr
	if *listen != "" {
		addr = *listen
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(e.local, mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	e.logger.Info("gateway listening", "addr", addr, "prefix", storage.BlobPathPrefix)

loop:
	for {
		select {
		case err := <-errCh:
			return err
		case <-hup:
			e.reloadSession(g, mgr)
		case <-ctx.Done():
			break loop
		}
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	e.logger.Info("gateway stopped")
	return nil
}
