package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
)

// LoadFromPostgres reads field definitions from the facet_fields table:
//
//	CREATE TABLE facet_fields (
//	    name         TEXT PRIMARY KEY,
//	    type         TEXT NOT NULL DEFAULT 'string',
//	    indexed      BOOLEAN NOT NULL DEFAULT TRUE,
//	    multi_valued BOOLEAN NOT NULL DEFAULT FALSE
//	);
func LoadFromPostgres(ctx context.Context, db *postgres.Client) (*Schema, error) {
	rows, err := db.DB.QueryContext(ctx,
		`SELECT name, type, indexed, multi_valued FROM facet_fields ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying facet_fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		var typ string
		if err := rows.Scan(&f.Name, &typ, &f.Indexed, &f.Multi); err != nil {
			return nil, fmt.Errorf("scanning facet_fields row: %w", err)
		}
		f.Type = Type(typ)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facet_fields: %w", err)
	}
	slog.Default().With("component", "schema").Info("schema loaded from postgres", "fields", len(fields))
	return New(fields)
}

// Load builds the schema named by cfg.Source. db is only used for the
// postgres source and may be nil otherwise.
func Load(ctx context.Context, cfg config.SchemaConfig, db *postgres.Client) (*Schema, error) {
	if cfg.Source != "postgres" {
		return FromConfig(cfg)
	}
	if db == nil {
		return nil, fmt.Errorf("schema source postgres needs a database connection: %w", apperrors.ErrConfiguration)
	}
	return LoadFromPostgres(ctx, db)
}
