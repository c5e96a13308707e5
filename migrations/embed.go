// Package migrations provides the embedded manifest schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
