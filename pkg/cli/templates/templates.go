// Package templates provides the embedded starter configuration for
// bizlog init.
package templates

import (
	_ "embed"
)

//go:embed starter.yaml
var starter []byte

// Starter returns the starter configuration file.
func Starter() []byte {
	out := make([]byte, len(starter))
	copy(out, starter)
	return out
}
