// Package dashboard provides the embedded web UI assets for yieldboard.
//
// The dashboard HTML, CSS and JavaScript are embedded at compile time so the
// binary deploys without external files. The server package serves them at
// the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
//	assets/
//	  index.html    - board view, portfolio form and SSE client
//
//go:embed assets/*
var Assets embed.FS
