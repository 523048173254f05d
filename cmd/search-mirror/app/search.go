package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/query"
)

func newSearchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search INDEX [TEXT]",
		Short: "Search an index",
		Long: `Search an index with the request strategy of its configuration. The
result is printed as JSON, with an "origin" field telling whether the hosted
service or the mirror answered.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			params, _ := cmd.Flags().GetString("params")
			q, err := query.Parse(params)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				q.SetQuery(args[1])
			}

			client, err := newMirrorClient(cfg)
			if err != nil {
				return err
			}
			defer closeClient(client)

			idx, err := openIndex(client, cfg, args[0])
			if err != nil {
				return err
			}
			if name, _ := cmd.Flags().GetString("strategy"); name != "" {
				strategy, err := mirror.ParseStrategy(name)
				if err != nil {
					return err
				}
				idx.SetRequestStrategy(strategy)
			}

			result, err := idx.Search(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().String("params", "", "URL-encoded search parameters, e.g. hitsPerPage=5&filters=brand%3Aacme")
	cmd.Flags().String("strategy", "",
		"Request strategy: fallback-on-failure, fallback-on-timeout, online-only or offline-only")
	return cmd
}

func newBrowseCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse INDEX",
		Short: "Browse the mirror or the hosted index",
		Long: `Browse the objects of an index, one page at a time. The mirror is browsed
unless --online is given. Pass the cursor of a page with --cursor to fetch the
next one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			online, _ := cmd.Flags().GetBool("online")
			cursor, _ := cmd.Flags().GetString("cursor")
			params, _ := cmd.Flags().GetString("params")
			q, err := query.Parse(params)
			if err != nil {
				return err
			}

			client, err := newMirrorClient(cfg)
			if err != nil {
				return err
			}
			defer closeClient(client)

			idx, err := openIndex(client, cfg, args[0])
			if err != nil {
				return err
			}

			var result *mirror.Result
			ctx := cmd.Context()
			switch {
			case online && cursor != "":
				result, err = idx.BrowseOnlineFrom(ctx, mirror.Cursor{Value: cursor, Origin: mirror.OriginRemote})
			case online:
				result, err = idx.BrowseOnline(ctx, q)
			case cursor != "":
				result, err = idx.BrowseMirrorFrom(ctx, mirror.Cursor{Value: cursor, Origin: mirror.OriginLocal})
			default:
				result, err = idx.BrowseMirror(ctx, q)
			}
			if err != nil {
				return fmt.Errorf("browse failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Bool("online", false, "Browse the hosted index instead of the mirror")
	cmd.Flags().String("cursor", "", "Cursor of the previous page")
	cmd.Flags().String("params", "", "URL-encoded browse parameters")
	return cmd
}
