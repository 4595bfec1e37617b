package file

import (
	"github.com/go-git/go-billy/v5"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithFilesystem sets the billy filesystem records are written to. If not
// provided, New uses osfs rooted at its dir argument.
//
// This option is primarily useful for testing, allowing use of memfs.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(g *Gateway) {
		g.fs = fs
	}
}

// WithDir sets the directory, relative to the filesystem root, that holds the
// record files. Defaults to "records".
func WithDir(dir string) Option {
	return func(g *Gateway) {
		g.dir = dir
	}
}
