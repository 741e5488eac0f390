// Package fonts provides the typefaces compiled into the binary.
//
// The Go font family from golang.org/x/image/font/gofont is always
// available, so a batch can be generated without any font files on disk.
package fonts

import (
	"sort"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
)

// Default is the built-in font used when a request names none.
const Default = "goregular"

var builtins = map[string][]byte{
	"goregular":   goregular.TTF,
	"gobold":      gobold.TTF,
	"gomedium":    gomedium.TTF,
	"gomono":      gomono.TTF,
	"gomonobold":  gomonobold.TTF,
	"gosmallcaps": gosmallcaps.TTF,
}

// Builtin returns the bytes of a built-in font. Names are case-insensitive
// and may carry a ".ttf" suffix.
func Builtin(name string) ([]byte, bool) {
	data, ok := builtins[normalize(name)]
	return data, ok
}

// IsBuiltin reports whether name refers to a built-in font.
func IsBuiltin(name string) bool {
	_, ok := builtins[normalize(name)]
	return ok
}

// Names lists the built-in fonts in name order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".ttf")
}
