package apilo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"order_sync/internal/domain"
)

const platformMapPath = "/rest/api/orders/platform/map/"

type requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// Directory maps upstream platform-account ids to channel labels. It is
// loaded lazily on first use and then kept until Reload; a platform added
// upstream afterwards renders as "Platform <id>" until then.
type Directory struct {
	client requester
	logger *slog.Logger

	loadMu   sync.Mutex
	mu       sync.RWMutex
	entries  map[int64]domain.Platform
	loadedAt time.Time
}

func NewDirectory(client requester, logger *slog.Logger) *Directory {
	return &Directory{
		client: client,
		logger: logger.With("component", "platform_directory"),
	}
}

// Ensure loads the directory unless it is already loaded.
func (d *Directory) Ensure(ctx context.Context) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	if !d.LoadedAt().IsZero() {
		return nil
	}
	return d.load(ctx)
}

// Reload replaces the directory with a fresh copy from upstream. On failure
// the previous entries stay in place.
func (d *Directory) Reload(ctx context.Context) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	return d.load(ctx)
}

func (d *Directory) load(ctx context.Context) error {
	var rows []PlatformEntry
	if err := d.client.Do(ctx, http.MethodGet, platformMapPath, nil, &rows); err != nil {
		return fmt.Errorf("load platform map: %w", err)
	}

	entries := make(map[int64]domain.Platform, len(rows))
	for _, row := range rows {
		if !row.ID.Valid {
			continue
		}
		name := string(row.Name)
		label := string(row.Description)
		if label == "" {
			label = name
		}
		entries[row.ID.Value] = domain.Platform{
			ID:     row.ID.Value,
			Label:  label,
			Family: familyOf(name),
		}
	}

	d.mu.Lock()
	d.entries = entries
	d.loadedAt = time.Now()
	d.mu.Unlock()

	d.logger.Info("platform map loaded", "platforms", len(entries))
	return nil
}

// Lookup implements PlatformLookup.
func (d *Directory) Lookup(id int64) (domain.Platform, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.entries[id]
	return p, ok
}

// LoadedAt is zero until the first successful load.
func (d *Directory) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

func (d *Directory) size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// familyOf returns the marketplace family of a platform name: the text
// before the first separator, so "Amazon DE" and "Kaufland.de" become
// "Amazon" and "Kaufland".
func familyOf(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(name, " -_."); i > 0 {
		return name[:i]
	}
	return name
}
