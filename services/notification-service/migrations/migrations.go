// Package migrations embeds the notification-service schema files.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
