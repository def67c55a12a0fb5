// Package web holds the dashboard served by the monitor.
package web

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DevEnv names the variable that switches the dashboard to files on disk.
// "true" or "1" serves the dist directory of this source tree. Any other
// non-empty value is taken as the directory to serve.
const DevEnv = "CHRONOS_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// GetAssets returns the dashboard files. Paths that do not name a file fall
// back to index.html so that client-side routes load the dashboard.
func GetAssets() http.FileSystem {
	return indexFallback{http.FS(Assets())}
}

// Assets returns the dashboard as a file system, from disk in development
// mode and from the binary otherwise.
func Assets() fs.FS {
	if dir := devDir(); dir != "" {
		fmt.Fprintf(os.Stderr, "Monitor dashboard served from %s\n", dir)
		return os.DirFS(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return sub
}

func devDir() string {
	value := strings.TrimSpace(os.Getenv(DevEnv))

	switch strings.ToLower(value) {
	case "", "0", "false":
		return ""
	case "1", "true":
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			panic("cannot locate the dashboard sources")
		}

		return filepath.Join(filepath.Dir(file), "dist")
	default:
		return value
	}
}

type indexFallback struct {
	http.FileSystem
}

func (f indexFallback) Open(name string) (http.File, error) {
	file, err := f.FileSystem.Open(name)
	if errors.Is(err, fs.ErrNotExist) && filepath.Ext(name) == "" {
		return f.FileSystem.Open("/index.html")
	}

	return file, err
}
