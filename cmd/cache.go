package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/agin/internal/repositories"
	"github.com/desertthunder/agin/internal/shared"
)

// CachePrune removes expired catalog cache entries.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	n, err := repositories.NewCacheRepository(db).Prune()
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}

	r.logger.Info("pruned catalog cache", "entries", n)
	r.writePlain("✓ Removed %d expired cache entries\n", n)
	return nil
}
