// Package appfs embeds the files shipped with every binary.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/*
var FS embed.FS
