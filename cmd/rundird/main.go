package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/rundird/internal/config"
	"github.com/hnrobert/rundird/internal/counter"
	"github.com/hnrobert/rundird/internal/identity"
	"github.com/hnrobert/rundird/internal/journal"
	"github.com/hnrobert/rundird/internal/logger"
	"github.com/hnrobert/rundird/internal/rundir"
	"github.com/hnrobert/rundird/internal/session"
	"github.com/hnrobert/rundird/internal/token"
)

// rundird is invoked by the session manager (e.g. via pam_exec) with
// exactly two verbs: "open <username>" when a session begins, printing
// VAR=dir for the host to export, and "close <username>" when it ends.

func main() {
	if len(os.Args) != 3 || (os.Args[1] != "open" && os.Args[1] != "close") {
		fmt.Fprintf(os.Stderr, "usage: %s open|close <username>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	verb, username := os.Args[1], os.Args[2]

	store := config.NewStore(getenvDefault("RUNDIRD_CONFIG", config.DefaultPath()))
	if err := store.Ensure(); err != nil {
		logger.Warn("ensure config: %v", err)
	}
	cfg, err := store.Get()
	if err != nil {
		logger.Error("load config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogDir); err != nil {
		logger.Warn("file logging disabled: %v", err)
	}
	defer logger.Close()

	if unix.Geteuid() != 0 {
		logger.Error("must be root to manage runtime directories")
		os.Exit(1)
	}

	h := &helper{
		cfg:    cfg,
		ids:    identity.NewDefault(),
		mgr:    newManager(cfg),
		leases: session.NewStore(filepath.Join(cfg.StateDir, "leases.json")),
		events: journal.NewWriter(filepath.Join(cfg.StateDir, "journal")),
	}
	h.secret, err = token.LoadOrCreateSecret(filepath.Join(cfg.StateDir, "secret"))
	if err != nil {
		logger.Error("token secret: %v", err)
		os.Exit(1)
	}

	switch verb {
	case "open":
		err = h.open(username)
	case "close":
		err = h.close(username)
	}
	if err != nil {
		logger.Error("%s %s: %v", verb, username, err)
		os.Exit(1)
	}
}

func newManager(cfg config.Config) *rundir.Manager {
	m := rundir.New(cfg.ParentDir)
	m.Policy = counter.Policy{Attempts: cfg.LockAttempts, Delay: cfg.LockDelay()}
	return m
}

type helper struct {
	cfg    config.Config
	ids    *identity.Resolver
	mgr    *rundir.Manager
	leases *session.Store
	events *journal.Writer
	secret []byte
}

func (h *helper) open(username string) error {
	u, err := h.ids.Resolve(username)
	if err != nil {
		return err
	}

	dir, err := h.mgr.Acquire(u.UID, u.GID)
	if err != nil {
		h.record("acquire", u.UID, dir, err)
		return err
	}

	leaseID, err := token.NewLeaseID()
	var tok string
	if err == nil {
		tok, err = token.Sign(h.secret, u.UID, dir, leaseID)
	}
	if err == nil {
		err = h.leases.Ensure()
	}
	if err == nil {
		err = h.leases.Put(session.Lease{
			Key:        sessionKey(username),
			UID:        u.UID,
			Dir:        dir,
			Token:      tok,
			AcquiredAt: time.Now().UTC(),
		})
	}
	if err != nil {
		// Without a recorded lease no close will ever pair with this
		// open, so give the count back before failing.
		if rerr := h.mgr.Release(u.UID); rerr != nil {
			logger.Error("revert acquire for %s: %v", username, rerr)
		}
		h.record("acquire", u.UID, dir, err)
		return err
	}

	h.record("acquire", u.UID, dir, nil)
	fmt.Printf("%s=%s\n", h.cfg.VarName, dir)
	return nil
}

func (h *helper) close(username string) error {
	key := sessionKey(username)
	l, err := h.leases.Get(key)
	if err != nil {
		if errors.Is(err, session.ErrNoLease) {
			// The matching open never succeeded; nothing was counted.
			return nil
		}
		return err
	}

	// Verify before consuming the lease: rejecting the token must not
	// cost the session its pending release.
	claims, err := token.Verify(h.secret, l.Token)
	if err != nil {
		return fmt.Errorf("lease token for %s: %w", username, err)
	}

	if _, err := h.leases.Take(key); err != nil {
		return err
	}
	err = h.mgr.Release(claims.UID)
	h.record("release", claims.UID, claims.Dir, err)
	return err
}

func (h *helper) record(event string, uid int, dir string, opErr error) {
	ev := journal.Event{Event: event, UID: uid, Dir: dir}
	if opErr != nil {
		ev.Error = opErr.Error()
	}
	if err := h.events.Append(ev); err != nil {
		logger.Warn("journal: %v", err)
	}
}

// sessionKey pairs an open with its close. The session manager can pass
// an explicit id; otherwise the invoking process (the session leader
// runs both hooks) stands in for one.
func sessionKey(username string) string {
	if sid := os.Getenv("RUNDIRD_SESSION_ID"); sid != "" {
		return username + ":" + sid
	}
	return fmt.Sprintf("%s:%d", username, os.Getppid())
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
