// Package fontstore finds font bytes by name.
//
// Fonts come from three places, tried in order by a [Resolver]:
//
//  1. the built-in Go fonts ([fonts.Builtin]),
//  2. an http(s) URL, downloaded through [httputil.Client],
//  3. one or more [Store] backends holding uploaded fonts: a directory
//     ([FileStore]) or a MongoDB collection ([MongoStore]).
package fontstore

import (
	"context"
	"time"
)

// Info describes a stored font.
type Info struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Source   string    `json:"source"`
	Modified time.Time `json:"modified,omitempty"`
}

// Store holds uploaded fonts. Names are validated with
// errors.ValidateFontName. Get returns a FONT_NOT_FOUND error for unknown
// names.
type Store interface {
	List(ctx context.Context) ([]Info, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
}
