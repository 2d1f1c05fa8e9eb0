package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/storage"
)

// =============================================================================
// validate
// =============================================================================

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a catalog file, or the builtin table when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := loadFile(path)
			if err != nil {
				return fmt.Errorf("invalid catalog: %w", err)
			}
			printSummary(cmd, cat)
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, cat *catalog.Catalog) {
	tiers := cat.Tiers()
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = string(t)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Catalog OK: %d tiers (%s), %d capabilities\n",
		len(tiers), strings.Join(names, " < "), len(cat.Capabilities()))
}

// =============================================================================
// show
// =============================================================================

func newShowCmd(opts *options) *cobra.Command {
	var (
		file        string
		fromStorage bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a catalog as YAML",
		Long: `Print a catalog as YAML. By default the builtin table is printed; use
--file for a local file or --from-storage for the published catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Catalog
				err error
			)
			if fromStorage {
				store, key, serr := opts.openStorage(cmd)
				if serr != nil {
					return serr
				}
				ctx, cancel := storageContext(cmd)
				defer cancel()
				cat, err = catalog.FromStorage(ctx, store, key)
			} else {
				cat, err = loadFile(file)
			}
			if err != nil {
				return err
			}
			doc, err := cat.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file to print")
	cmd.Flags().BoolVar(&fromStorage, "from-storage", false, "print the catalog published to storage")
	cmd.MarkFlagsMutuallyExclusive("file", "from-storage")
	return cmd
}

// =============================================================================
// publish
// =============================================================================

func newPublishCmd(opts *options) *cobra.Command {
	var (
		name      string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Validate a catalog file and upload it to storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadFile(args[0])
			if err != nil {
				return fmt.Errorf("refusing to publish invalid catalog: %w", err)
			}

			store, key, err := opts.openStorage(cmd)
			if err != nil {
				return err
			}
			if name != "" {
				key = storage.CatalogKey(name)
			}

			// Publish the normalized table rather than the raw file.
			var buf bytes.Buffer
			if err := catalog.Encode(&buf, cat.Table()); err != nil {
				return err
			}

			ctx, cancel := storageContext(cmd)
			defer cancel()
			err = store.Put(ctx, key, &buf, storage.PutOptions{
				ContentType: storage.ContentTypeYAML,
				MaxSize:     storage.MaxCatalogSize,
				Overwrite:   overwrite,
			})
			if storage.IsKeyExists(err) {
				return fmt.Errorf("%s already exists, pass --overwrite to replace it", key)
			}
			if err != nil {
				return domain.Wrap(err, storage.Code(err), "catalogctl.publish", "Catalog could not be uploaded.")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "publish under catalogs/<name>.yaml instead of --key")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing catalog at the key")
	return cmd
}
