// Package source loads a content server's station file and watches it for
// edits.
//
// The file holds one "key: value" attribute per line and must carry an id.
package source
