package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vonshlovens/clipkeep/internal/classify"
	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/history"
	"github.com/vonshlovens/clipkeep/internal/imagecodec"
	"github.com/vonshlovens/clipkeep/internal/store"
)

// previewWidth bounds the content column of list output.
const previewWidth = 60

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", arg)
	}
	return id, nil
}

// preview renders an entry as one short line.
func preview(e *store.Entry) string {
	var text string
	switch e.ContentType {
	case store.TypeImage:
		text = fmt.Sprintf("[image %s]", e.MimeType)
	case store.TypeFile:
		text = e.FilePath
	case store.TypeText:
		text = strings.Join(strings.Fields(e.Content), " ")
		if classify.IsURL(e.Content) {
			text = "[url] " + text
		}
	}

	if r := []rune(text); len(r) > previewWidth {
		text = string(r[:previewWidth-1]) + "…"
	}
	return text
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show clipboard history, newest first",
		Args:  cobra.NoArgs,
	}

	var (
		search    string
		typ       string
		favorites bool
		limit     int
	)
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive substring to match")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "only show text, file or image entries")
	cmd.Flags().BoolVarP(&favorites, "favorites", "f", false, "only show favorites")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries (0 for all)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		filter := store.Filter{Search: search, FavoritesOnly: favorites, Limit: limit}
		if typ != "" {
			ct, err := store.ParseContentType(typ)
			if err != nil {
				return err
			}
			filter.ContentType = ct
		}

		_, s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		shown := 0
		for e, err := range s.Query(ctx, filter) {
			if err != nil {
				return err
			}
			fav := " "
			if e.IsFavorite {
				fav = "*"
			}
			size := ""
			if e.FileSize > 0 {
				size = humanize.Bytes(uint64(e.FileSize))
			}
			fmt.Printf("%6d %s %-5s %-14s %8s  %s\n",
				e.ID, fav, e.ContentType, humanize.Time(e.Timestamp), size, preview(e))
			shown++
		}

		if shown == 0 {
			fmt.Println("No entries.")
		}
		return nil
	}

	return cmd
}

func copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Put a history entry back on the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			cfg, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			clip, err := clipboard.NewSystem()
			if err != nil {
				return err
			}

			// The handoff tells a running daemon to skip this write.
			handoff, err := newHandoff(cfg)
			if err != nil {
				return err
			}

			svc := history.NewService(s, clip, imagecodec.New(cfg.Poll.ThumbnailPx), handoff)
			e, err := svc.CopyToClipboard(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("Copied entry %d (%s) to the clipboard.\n", e.ID, e.ContentType)
			return nil
		},
	}
}

func favCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav <id>",
		Short: "Mark an entry as favorite",
		Long:  `Marks an entry as favorite so clear and retention never remove it. Use --off to unmark.`,
		Args:  cobra.ExactArgs(1),
	}

	off := false
	cmd.Flags().BoolVar(&off, "off", false, "remove the favorite mark")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		_, s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := history.NewService(s, nil, nil, nil).SetFavorite(ctx, id, !off); err != nil {
			return err
		}

		if off {
			fmt.Printf("Entry %d is no longer a favorite.\n", id)
		} else {
			fmt.Printf("Entry %d marked as favorite.\n", id)
		}
		return nil
	}

	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a history entry, favorite or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			_, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := history.NewService(s, nil, nil, nil).Delete(ctx, id); err != nil {
				return err
			}

			fmt.Printf("Entry %d deleted.\n", id)
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all non-favorite entries",
		Args:  cobra.NoArgs,
	}

	all := false
	cmd.Flags().BoolVar(&all, "all", false, "remove favorites too")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		_, s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		removed, err := history.NewService(s, nil, nil, nil).ClearAll(ctx, !all)
		if err != nil {
			return err
		}

		fmt.Printf("Removed %s entries.\n", humanize.Comma(removed))
		return nil
	}

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export history to a JSON or YAML file",
		Long:  `Writes the whole history, or only favorites, to a standalone file. The format follows the extension (.yaml/.yml or JSON). Backup state is not affected.`,
		Args:  cobra.ExactArgs(1),
	}

	favorites := false
	cmd.Flags().BoolVar(&favorites, "favorites", false, "only export favorites")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		syncer, err := newSynchronizer(cfg, s, os.Stderr)
		if err != nil {
			return err
		}

		res, err := syncer.Export(ctx, args[0], favorites)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported %s entries to %s.\n", humanize.Comma(int64(res.Written)), res.Path)
		return nil
	}

	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Append new entries to the backup file, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			syncer, err := newSynchronizer(cfg, s, os.Stderr)
			if err != nil {
				return err
			}

			res, err := syncer.Incremental(ctx)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			if res.Written == 0 {
				fmt.Println("Backup is up to date.")
				return nil
			}
			fmt.Printf("Backed up %s new entries to %s (%s total).\n",
				humanize.Comma(int64(res.Written)), res.Path, humanize.Comma(int64(res.Total)))
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore entries from an export or backup file",
		Long:  `Restores every entry of a JSON or YAML export whose content is not already in the history, keeping its timestamp, favorite mark and access count.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			syncer, err := newSynchronizer(cfg, s, os.Stderr)
			if err != nil {
				return err
			}

			res, err := syncer.Import(ctx, args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			fmt.Printf("Restored %s of %s entries.\n",
				humanize.Comma(int64(res.Written)), humanize.Comma(int64(res.Total)))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show history and backup status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, s, err := openStore(ctx)
			if err != nil {
				fmt.Printf("History Status: Unavailable\n")
				fmt.Printf("Error: %v\n", err)
				return nil
			}
			defer s.Close()

			status, err := history.NewService(s, nil, nil, nil).Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			fmt.Println("=== Clipkeep Status ===")
			fmt.Printf("Database: %s\n", cfg.Database.Path)
			if info, err := os.Stat(cfg.Database.Path); err == nil {
				fmt.Printf("  Size: %s\n", humanize.Bytes(uint64(info.Size())))
			}
			fmt.Printf("  Schema Version: %d\n", status.SchemaVersion)
			fmt.Println()
			fmt.Printf("Entries: %s\n", humanize.Comma(status.Total))
			for _, ct := range []store.ContentType{store.TypeText, store.TypeFile, store.TypeImage} {
				fmt.Printf("  %s: %s\n", ct, humanize.Comma(status.ByType[ct]))
			}
			fmt.Printf("  Favorites: %s\n", humanize.Comma(status.Favorites))
			if status.Newest != nil {
				fmt.Printf("  Last Copied: %s (%s)\n", status.Newest.Local().Format(time.RFC3339), humanize.Time(*status.Newest))
			}
			fmt.Println()
			fmt.Printf("Backup: %s\n", cfg.Backup.Path)
			fmt.Printf("  Enabled: %t\n", cfg.Backup.Enabled)
			fmt.Printf("  Pending: %s\n", humanize.Comma(status.Unbacked))

			syncer, err := newSynchronizer(cfg, s, nil)
			if err == nil {
				if st := syncer.State(); st != nil {
					if st.LastBackup != nil {
						fmt.Printf("  Last Backup: %s (%s)\n", st.LastBackup.Local().Format(time.RFC3339), humanize.Time(*st.LastBackup))
					}
					if st.LastError != "" {
						fmt.Printf("  Last Error: %s\n", st.LastError)
					}
				}
			}

			return nil
		},
	}
}
