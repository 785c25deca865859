// Package deps reports whether the external binaries rawlabel shells out to
// are installed, and which version was found.
package deps
