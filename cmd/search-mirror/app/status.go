package app

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/pkg/status"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [INDEX...]",
		Short: "Show the mirror status of indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			client, err := newMirrorClient(cfg)
			if err != nil {
				return err
			}
			defer closeClient(client)

			names := indexNames(cfg, args)
			statuses := make([]service.IndexStatus, 0, len(names))
			for _, name := range names {
				idx, err := openIndex(client, cfg, name)
				if err != nil {
					return err
				}
				statuses = append(statuses, service.NewIndexStatus(idx))
			}

			if format, _ := cmd.Flags().GetString("format"); format == "json" {
				return writeJSON(cmd.OutOrStdout(), statuses)
			}
			return printStatusTable(cmd.OutOrStdout(), statuses)
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

func printStatusTable(w io.Writer, statuses []service.IndexStatus) error {
	table := tablewriter.NewWriter(w)
	table.Header("Index", "Mirrored", "Strategy", "Phase", "Objects", "Offline data", "Last sync")

	for _, st := range statuses {
		lastSync := "never"
		if st.LastSyncDate != nil {
			lastSync = st.LastSyncDate.Local().Format(time.DateTime)
		}
		phase := string(st.Phase)
		if st.Syncing {
			phase = string(status.SyncPhaseSyncing)
		}
		row := []string{
			st.Name,
			strconv.FormatBool(st.Mirrored),
			st.RequestStrategy,
			phase,
			strconv.Itoa(st.ObjectCount),
			strconv.FormatBool(st.HasOfflineData),
			lastSync,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render status: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render status: %w", err)
	}
	return nil
}
