// Package migrations carries the ledger schema so the binary can migrate a
// database without the source tree next to it.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
