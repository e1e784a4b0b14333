// Package web embeds the dashboard served at the root of the HTTP API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// Dashboard returns the dashboard files with the dist/ prefix stripped.
func Dashboard() (fs.FS, error) {
	return fs.Sub(dist, "dist")
}
