package fontstore

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/matzehuels/keyforge/pkg/atlas"
	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/fonts"
	"github.com/matzehuels/keyforge/pkg/httputil"
)

// Fetcher downloads font bytes. *httputil.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var _ Fetcher = (*httputil.Client)(nil)

// Resolver turns a font identifier into font bytes.
type Resolver struct {
	Stores  []Store
	Fetcher Fetcher
}

// NewResolver returns a resolver over stores, tried in order.
func NewResolver(fetcher Fetcher, stores ...Store) *Resolver {
	return &Resolver{Stores: stores, Fetcher: fetcher}
}

// Resolve returns the bytes for id and the place they came from. An empty
// id selects the default built-in font.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]byte, string, error) {
	if id == "" {
		id = fonts.Default
	}
	if data, ok := fonts.Builtin(id); ok {
		return data, "builtin", nil
	}

	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		if r.Fetcher == nil {
			return nil, "", errors.New(errors.ErrCodeFontNotFound, "font downloads are disabled: %s", id)
		}
		data, err := r.Fetcher.Fetch(ctx, id)
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, "", errors.Wrap(errors.ErrCodeFontNotFound, err, "font not found: %s", id)
		}
		if err != nil {
			return nil, "", err
		}
		return data, "url", nil
	}

	if err := errors.ValidateFontName(id); err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeFontNotFound, err, "font not found: %s", id)
	}
	for _, s := range r.Stores {
		data, err := s.Get(ctx, id)
		if err == nil {
			return data, "store", nil
		}
		if !errors.Is(err, errors.ErrCodeFontNotFound) {
			return nil, "", err
		}
	}
	return nil, "", errors.New(errors.ErrCodeFontNotFound, "font not found: %s", id)
}

// List returns the built-in fonts followed by every stored font. A name
// found in several stores is listed once, from the first store.
func (r *Resolver) List(ctx context.Context) ([]Info, error) {
	var out []Info
	for _, n := range fonts.Names() {
		data, _ := fonts.Builtin(n)
		out = append(out, Info{Name: n, Size: int64(len(data)), Source: "builtin"})
	}

	seen := make(map[string]bool)
	var stored []Info
	for _, s := range r.Stores {
		infos, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if !seen[info.Name] {
				seen[info.Name] = true
				stored = append(stored, info)
			}
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Name < stored[j].Name })
	return append(out, stored...), nil
}

// DisplayName returns a short name for a font identifier, suitable for
// logs and archive names.
func DisplayName(id string) string {
	if id == "" {
		return fonts.Default
	}
	return path.Base(id)
}

// MaxFontBytes is the largest font accepted by [Upload].
const MaxFontBytes = 16 << 20

// Upload checks that data parses as a font and stores it under name.
func Upload(ctx context.Context, s Store, name string, data []byte) (*atlas.Font, error) {
	if err := errors.ValidateFontName(name); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "font %s is empty", name)
	}
	if len(data) > MaxFontBytes {
		return nil, errors.New(errors.ErrCodeInvalidInput, "font %s is larger than %d bytes", name, MaxFontBytes)
	}
	f, err := atlas.Load(data)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, name, data); err != nil {
		return nil, err
	}
	return f, nil
}
