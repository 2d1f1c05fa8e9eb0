package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/storage"
)

// Reader is the part of storage.Storage the catalog needs to load itself.
type Reader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

// Load decodes a YAML table from r and builds a catalog from it. Unknown
// fields are rejected so a typo in a deployment file fails at startup
// instead of silently granting the default.
func Load(r io.Reader) (*Catalog, error) {
	table, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return New(table)
}

// Decode parses a YAML table without validating it.
func Decode(r io.Reader) (Table, error) {
	const op = "catalog.decode"

	dec := yaml.NewDecoder(io.LimitReader(r, storage.MaxCatalogSize))
	dec.KnownFields(true)

	var table Table
	if err := dec.Decode(&table); err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, domain.ConfigError(op, "catalog document is empty")
		}
		return Table{}, domain.ConfigError(op, "parse catalog: %v", err)
	}
	return table, nil
}

// Encode writes table as YAML.
func Encode(w io.Writer, table Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(table); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}

// FromStorage loads the catalog stored at key.
func FromStorage(ctx context.Context, src Reader, key string) (*Catalog, error) {
	const op = "catalog.from_storage"

	rc, _, err := src.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.ConfigError(op, "no catalog at %q", key)
		}
		return nil, domain.Wrap(err, domain.ECONFIG, op, "Catalog could not be read.")
	}
	defer rc.Close()

	return Load(rc)
}

// Marshal renders the catalog's table as a YAML string, mainly for
// catalogctl output.
func (c *Catalog) Marshal() (string, error) {
	var b strings.Builder
	if err := Encode(&b, c.Table()); err != nil {
		return "", err
	}
	return b.String(), nil
}
