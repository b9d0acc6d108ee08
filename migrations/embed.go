// Package migrations embeds the SQL schema files so the migrate
// binary is self-contained and can run from any working directory.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
