// Package appfs embeds the static files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations/*.sql templates
var FS embed.FS
