// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

// Paths inside FS.
const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
	OffenseCatalog    = "assets/offenses.yaml"
	CommonPasswords   = "assets/common-passwords.txt.gz"
)

//go:embed migrations assets templates
var FS embed.FS
