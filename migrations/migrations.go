// Package migrations embeds the catalog database schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
