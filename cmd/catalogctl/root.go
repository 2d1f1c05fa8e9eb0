package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/pixeldraft/internal"
	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/storage"
)

// storageTimeout bounds a single storage round trip.
const storageTimeout = 30 * time.Second

// options holds the global flags shared by every subcommand.
type options struct {
	provider    string
	storagePath string
	key         string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Manage pixeldraft tier catalogs",
		Long: `catalogctl checks tier catalog files, prints them, and publishes them to
the storage the entitlement server loads its catalog from.

Storage credentials are read from the same environment variables as the
server (R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "storage provider: local or r2 (default from CATALOG_SOURCE, else local)")
	root.PersistentFlags().StringVar(&opts.storagePath, "storage-path", "", "base directory for local storage (default from LOCAL_STORAGE_PATH)")
	root.PersistentFlags().StringVar(&opts.key, "key", "", "storage key of the catalog (default from CATALOG_KEY)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log storage operations")

	root.AddCommand(
		newValidateCmd(opts),
		newShowCmd(opts),
		newPublishCmd(opts),
	)
	return root
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openStorage resolves the storage provider and key from flags, falling back
// to the server's environment configuration.
func (o *options) openStorage(cmd *cobra.Command) (storage.Storage, string, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	provider := o.provider
	if provider == "" {
		provider = cfg.CatalogSource
		if provider == internal.CatalogBuiltin {
			provider = storage.ProviderLocal
		}
	}
	basePath := o.storagePath
	if basePath == "" {
		basePath = cfg.LocalStoragePath
	}
	key := o.key
	if key == "" {
		key = cfg.CatalogKey
	}

	store, err := storage.New(storage.Config{
		Provider: provider,
		Local:    storage.LocalConfig{BasePath: basePath},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		},
	}, o.logger(cmd))
	if err != nil {
		return nil, "", err
	}
	return store, key, nil
}

// loadFile builds a catalog from a YAML file, or from the builtin table when
// path is empty.
func loadFile(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.Load(f)
}

func storageContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, storageTimeout)
}
