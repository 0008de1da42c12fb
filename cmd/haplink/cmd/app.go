package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haplink/haplink/internal/dlcache"
	"github.com/haplink/haplink/internal/fileops"
	"github.com/haplink/haplink/internal/hap"
	"github.com/haplink/haplink/internal/prefs"
	"github.com/haplink/haplink/internal/session"
	"github.com/haplink/haplink/internal/timetable"
)

// app wires the client stack for one command invocation.
type app struct {
	store   *prefs.Store
	client  *hap.Client
	manager *session.Manager
	cache   *dlcache.Cache
	coord   *fileops.Coordinator
}

func stateDir() (string, error) {
	if cfg.StateDir != "" {
		return cfg.StateDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(base, "haplink"), nil
}

func newApp() (*app, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	store, err := prefs.Open(filepath.Join(dir, "prefs.db"))
	if err != nil {
		return nil, err
	}

	// The env override wins; otherwise the stored mode stands.
	if cfg.DeviceMode != "" {
		if err := store.SetDeviceMode(cfg.DeviceMode); err != nil {
			store.Close()
			return nil, fmt.Errorf("persist device mode: %w", err)
		}
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = store.ServerURL()
	}
	if serverURL == "" {
		store.Close()
		return nil, fmt.Errorf("no server configured: set HAP_SERVER_URL or pass --server")
	}

	cache, err := dlcache.New(filepath.Join(dir, "cache"), cfg.MaxCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := hap.New(hap.Config{
		BaseURL: serverURL,
		Timeout: cfg.RequestTimeout,
	})
	manager := session.NewManager(client, session.Options{
		Store:           store,
		StaleAfter:      cfg.StaleAfter,
		KeepAlivePeriod: cfg.KeepAlivePeriod,
	})
	coord := fileops.NewCoordinator(client, fileops.Options{
		Cache:  cache,
		Store:  store,
		Decide: decideFromFlag(),
	})

	return &app{
		store:   store,
		client:  client,
		manager: manager,
		cache:   cache,
		coord:   coord,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// login authenticates with the configured credentials.
func (a *app) login(ctx context.Context) (*session.Session, timetable.State, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, timetable.State{}, fmt.Errorf("credentials required: set HAP_USERNAME and HAP_PASSWORD")
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = a.store.ServerURL()
	}
	return a.manager.Login(ctx, serverURL, cfg.Username, cfg.Password)
}

func decideFromFlag() fileops.DecideFunc {
	switch flagOnConflict {
	case "replace":
		return func(c fileops.Conflict) fileops.Decision {
			fmt.Printf("%s exists, replacing\n", c.Path)
			return fileops.Replace
		}
	case "new":
		return func(c fileops.Conflict) fileops.Decision {
			fmt.Printf("%s exists, using a new name\n", c.Path)
			return fileops.CreateNew
		}
	default:
		return func(c fileops.Conflict) fileops.Decision {
			fmt.Printf("%s exists, skipping\n", c.Path)
			return fileops.Skip
		}
	}
}

// reportOutcomes prints per-item results and returns an error when any item
// failed.
func reportOutcomes(outs []fileops.ItemOutcome) error {
	failed := 0
	for _, out := range outs {
		switch out.Status {
		case fileops.StatusDone:
			fmt.Printf("done     %s\n", out.FinalName)
		case fileops.StatusSkipped:
			fmt.Printf("skipped  %s\n", out.Name)
		case fileops.StatusFailed:
			failed++
			fmt.Printf("failed   %s: %v\n", out.Name, out.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(outs))
	}
	return nil
}
