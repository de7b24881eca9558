package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/clipkeep/internal/backup"
	"github.com/vonshlovens/clipkeep/internal/classify"
	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/config"
	"github.com/vonshlovens/clipkeep/internal/fingerprint"
	"github.com/vonshlovens/clipkeep/internal/history"
	"github.com/vonshlovens/clipkeep/internal/imagecodec"
	"github.com/vonshlovens/clipkeep/internal/poller"
	"github.com/vonshlovens/clipkeep/internal/store"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

// pruneEvery is how often the daemon applies retention limits.
const pruneEvery = time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:     "clipkeep",
		Short:   "Clipboard history daemon",
		Long:    `A cross-platform daemon that records everything copied to the clipboard into a searchable local history, with favorites and JSON/YAML backups.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		daemonCmd(),
		listCmd(),
		copyCmd(),
		favCmd(),
		deleteCmd(),
		clearCmd(),
		exportCmd(),
		backupCmd(),
		importCmd(),
		statusCmd(),
		migrateCmd(),
		initCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Start the background clipboard recorder",
		Long:  `Starts a daemon that polls the clipboard, records every new item, backs up history periodically and applies retention limits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loader := config.NewLoader(cfgFile)
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// One daemon per database
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			lock := flock.New(cfg.Database.Path + ".lock")
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to lock database: %w", err)
			}
			if !locked {
				return fmt.Errorf("another daemon is already recording into %s", cfg.Database.Path)
			}
			defer lock.Unlock()

			s, err := store.Open(ctx, cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer s.Close()

			clip, err := clipboard.NewSystem()
			if err != nil {
				return err
			}

			handoff, err := newHandoff(cfg)
			if err != nil {
				return err
			}

			codec := imagecodec.New(cfg.Poll.ThumbnailPx)
			classifier := classify.New(codec, classify.Options{
				MaxItemSize:        cfg.Poll.MaxItemSize(),
				IgnorePatterns:     cfg.IgnorePatterns,
				MaxThumbnailSource: cfg.Poll.MaxItemSize(),
			})
			p := poller.New(clip, classifier, s, poller.Options{
				Interval:     cfg.Poll.Interval(),
				ReadTimeout:  cfg.Poll.ReadTimeout(),
				DedupeWindow: cfg.Poll.DedupeWindow(),
				Handoff:      handoff,
			})

			loader.Watch(func(c *config.Config) {
				p.SetInterval(c.Poll.Interval())
			})

			var syncer *backup.Synchronizer
			var backupTick <-chan time.Time
			if cfg.Backup.Enabled {
				syncer, err = newSynchronizer(cfg, s, nil)
				if err != nil {
					return err
				}
				runBackup(ctx, syncer)

				if cfg.Backup.IntervalS > 0 {
					t := time.NewTicker(cfg.Backup.Interval())
					defer t.Stop()
					backupTick = t.C
				}
			}

			runPrune(ctx, s, cfg.History)
			pruneTicker := time.NewTicker(pruneEvery)
			defer pruneTicker.Stop()

			done := make(chan error, 1)
			go func() { done <- p.Run(ctx) }()

			slog.Info("daemon started", "database", cfg.Database.Path, "config", loader.ConfigFile())
			fmt.Println("Recording clipboard history. Press Ctrl+C to stop.")

			for {
				select {
				case <-ctx.Done():
					slog.Info("shutting down...")
					err := <-done
					if syncer != nil {
						// Final backup with a fresh context so shutdown does not cancel it
						runBackup(context.Background(), syncer)
					}
					return err

				case ev := <-p.Events():
					switch ev.Type {
					case poller.EventCreated:
						slog.Info("new clipboard entry", "id", ev.Entry.ID, "type", ev.Entry.ContentType)
					case poller.EventTouched:
						slog.Debug("clipboard entry refreshed", "id", ev.Entry.ID)
					case poller.EventError:
						slog.Warn("clipboard entry not stored, retrying next tick", "error", ev.Err)
					}

				case <-backupTick:
					runBackup(ctx, syncer)

				case <-pruneTicker.C:
					runPrune(ctx, s, loader.Current().History)
				}
			}
		},
	}
}

func runBackup(ctx context.Context, syncer *backup.Synchronizer) {
	if _, err := syncer.Incremental(ctx); err != nil {
		if errors.Is(err, backup.ErrExportWrite) {
			slog.Error("backup write failed, entries stay pending", "error", err)
			return
		}
		slog.Error("backup failed", "error", err)
	}
}

func runPrune(ctx context.Context, s *store.Store, h config.HistoryConfig) {
	if h.MaxItems == 0 && h.MaxDays == 0 {
		return
	}
	removed, err := s.Prune(ctx, h.MaxItems, h.MaxAge())
	if err != nil {
		slog.Error("retention cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("old entries removed", "count", removed)
	}
}

// newSynchronizer wires the backup artifact, its lock and the run state kept
// in the state directory. progress may be nil.
func newSynchronizer(cfg *config.Config, s backup.Source, progress io.Writer) (*backup.Synchronizer, error) {
	fsys := afero.NewOsFs()

	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}
	// Create a unique state file based on the artifact path hash
	statePath := filepath.Join(stateDir, "backup-"+fingerprint.HashString(cfg.Backup.Path)[:12]+".json")

	return backup.New(s, fsys, backup.Options{
		ArtifactPath: cfg.Backup.Path,
		LockPath:     cfg.Backup.Path + ".lock",
		Progress:     progress,
		State:        backup.NewStateTracker(fsys, statePath, cfg.Backup.Path),
	}), nil
}

// newHandoff locates the copy handoff shared by the daemon and one-shot
// commands working on the same database.
func newHandoff(cfg *config.Config) (*history.Handoff, error) {
	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, "copy-"+fingerprint.HashString(cfg.Database.Path)[:12]+".json")
	return history.NewHandoff(afero.NewOsFs(), path, nil), nil
}

func openStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	s, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return cfg, s, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Applies all pending schema migrations to the history database and prints the resulting version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			version, err := s.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Database %s is at schema version %d.\n", cfg.Database.Path, version)
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  `Writes a configuration file with the default settings, ready to edit.`,
	}

	force := false
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}

		if _, err := os.Stat(configPath); err == nil && !force {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		data, err := yaml.Marshal(config.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}

		fmt.Printf("Config file written to: %s\n", configPath)
		fmt.Println("\nTo start recording, run: clipkeep daemon")
		fmt.Println("To browse history, run: clipkeep list")
		return nil
	}

	return cmd
}
