package local

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gostratum/core"
)

// HealthCheck implements core.Check by stating the storage root
type HealthCheck struct {
	storage *Storage
}

// NewHealthCheck creates a readiness check for s
func NewHealthCheck(s *Storage) *HealthCheck {
	return &HealthCheck{storage: s}
}

func (h *HealthCheck) Name() string { return "fsx.local" }

func (h *HealthCheck) Kind() core.Kind { return core.Readiness }

func (h *HealthCheck) Check(ctx context.Context) error {
	if h.storage == nil {
		return fmt.Errorf("no filesystem storage")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := h.storage.fs.Stat(string(filepath.Separator))
	if err != nil {
		return fmt.Errorf("stat storage root %q: %w", h.storage.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", h.storage.root)
	}
	return nil
}
