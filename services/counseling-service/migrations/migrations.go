// Package migrations embeds the service schema for db.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
