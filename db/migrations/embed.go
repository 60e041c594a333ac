// Package migrations embeds the SQL schema applied on start-up.
package migrations

import "embed"

// FS holds the *.sql migration files in version order.
//
//go:embed *.sql
var FS embed.FS
