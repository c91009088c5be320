// Package cmd provides provider selection helpers shared by the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/clinicdesk/pathway/pkg/persistence/memory"
	"github.com/clinicdesk/pathway/pkg/persistence/postgresql"
)

// NewPersistence selects the store from the database URL scheme. An empty
// URL or `memory://` runs fully in-process, which is only suitable for
// development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres persistence: %w", err)
		}

		return p, nil
	case "memory", "":
		logger.WarnContext(ctx, "using in-memory persistence; data is lost on restart")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
