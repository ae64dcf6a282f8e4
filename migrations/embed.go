// Package migrations holds the Postgres audit schema.
package migrations

import "embed"

// FS is the schema shipped with the binary.
//
//go:embed *.sql
var FS embed.FS
