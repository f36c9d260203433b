// Package secrets holds reloadable secret material. The session signing keys
// live here so they can be rotated without a restart.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// Loader reads the current secret values.
type Loader func() (map[string]string, error)

// Check rejects a freshly loaded value set before it is swapped in.
type Check func(map[string]string) error

// Vault serves the last value set that passed its check.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
	check  Check
}

// NewVault loads the initial values. A nil check accepts everything.
func NewVault(loader Loader, check Check) (*Vault, error) {
	v := &Vault{loader: loader, check: check}
	if err := v.Reload(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Get returns the value for key, or "" if it is not set.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload replaces the values with a fresh load. On a loader or check
// failure the previous values stay in place.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	if v.check != nil {
		if err := v.check(vals); err != nil {
			return fmt.Errorf("check secrets: %w", err)
		}
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}

// ReloadOn reloads whenever one of sigs arrives, until ctx is done.
func (v *Vault) ReloadOn(ctx context.Context, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := v.Reload(); err != nil {
					slog.Error("secret reload failed, keeping previous values", "error", err)
					continue
				}
				slog.Info("secrets reloaded")
			}
		}
	}()
}
