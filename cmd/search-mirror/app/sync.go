package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/search-mirror/pkg/mirror"
	syncer "github.com/stacklok/search-mirror/pkg/sync"
)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [INDEX...]",
		Short: "Sync mirrored indices",
		Long: `Sync the given mirrored indices, or every configured index, and wait for
each sync to finish. Indices sync one after the other.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			names := indexNames(cfg, args)
			if len(names) == 0 {
				return fmt.Errorf("no index to sync")
			}

			client, err := newMirrorClient(cfg)
			if err != nil {
				return err
			}
			defer closeClient(client)

			for _, name := range names {
				idx, err := openIndex(client, cfg, name)
				if err != nil {
					return err
				}
				if err := syncAndWait(cmd.Context(), idx, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// syncAndWait starts a sync of idx and blocks until it finishes.
func syncAndWait(ctx context.Context, idx *mirror.MirroredIndex, out io.Writer) error {
	done := make(chan error, 1)
	var stats *syncer.Stats
	listener := &mirror.SyncListenerFuncs{
		OnFinish: func(_ *mirror.MirroredIndex, err error, s *syncer.Stats) {
			stats = s
			done <- err
		},
	}
	idx.AddSyncListener(listener)
	defer idx.RemoveSyncListener(listener)

	if err := idx.Sync(ctx); err != nil {
		return fmt.Errorf("failed to start sync of %s: %w", idx.Name(), err)
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sync of %s failed: %w", idx.Name(), err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if stats == nil {
		_, err := fmt.Fprintf(out, "%s: synced\n", idx.Name())
		return err
	}
	_, err := fmt.Fprintf(out, "%s: synced %d objects in %s\n",
		idx.Name(), stats.ObjectCount, stats.TotalDuration.Round(time.Millisecond))
	return err
}
