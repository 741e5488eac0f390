package fontstore

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/httputil"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if _, err := s.Get(ctx, "missing.ttf"); !errors.Is(err, errors.ErrCodeFontNotFound) {
		t.Errorf("Get(missing) error = %v, want %s", err, errors.ErrCodeFontNotFound)
	}
	if err := s.Put(ctx, "../evil.ttf", []byte("x")); !errors.Is(err, errors.ErrCodeInvalidFontName) {
		t.Errorf("Put(../evil.ttf) error = %v, want %s", err, errors.ErrCodeInvalidFontName)
	}

	if err := s.Put(ctx, "b.ttf", []byte("bb")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "a.otf", []byte("a")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := os.WriteFile(s.Path()+"/notes.txt", []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "b.ttf")
	if err != nil || string(got) != "bb" {
		t.Errorf("Get(b.ttf) = %q, %v", got, err)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a.otf" || infos[1].Name != "b.ttf" {
		t.Fatalf("List() = %+v, want a.otf, b.ttf", infos)
	}
	if infos[1].Size != 2 || infos[1].Source != "file" {
		t.Errorf("List()[1] = %+v", infos[1])
	}
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	f, err := Upload(ctx, s, "Bold.ttf", gobold.TTF)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if f.NumGlyphs() == 0 {
		t.Error("uploaded font has no glyphs")
	}

	tests := []struct {
		name string
		file string
		data []byte
		want errors.Code
	}{
		{"garbage", "bad.ttf", []byte("not a font"), errors.ErrCodeFontParse},
		{"empty", "empty.ttf", nil, errors.ErrCodeInvalidInput},
		{"bad extension", "font.woff", goregular.TTF, errors.ErrCodeInvalidFontName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Upload(ctx, s, tt.file, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Upload() error = %v, want %s", err, tt.want)
			}
			if _, err := s.Get(ctx, tt.file); err == nil {
				t.Error("rejected font was stored")
			}
		})
	}
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Bold.ttf" {
			http.NotFound(w, r)
			return
		}
		w.Write(gobold.TTF)
	}))
	defer srv.Close()

	first, _ := NewFileStore(t.TempDir())
	second, _ := NewFileStore(t.TempDir())
	first.Put(ctx, "Shared.ttf", []byte("first"))
	second.Put(ctx, "Shared.ttf", []byte("second"))
	second.Put(ctx, "Only.ttf", []byte("only"))

	r := NewResolver(httputil.NewClient(nil, nil), first, second)

	tests := []struct {
		name   string
		id     string
		want   []byte
		source string
	}{
		{"default", "", goregular.TTF, "builtin"},
		{"builtin", "GoBold.ttf", gobold.TTF, "builtin"},
		{"url", srv.URL + "/Bold.ttf", gobold.TTF, "url"},
		{"first store wins", "Shared.ttf", []byte("first"), "store"},
		{"second store", "Only.ttf", []byte("only"), "store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, source, err := r.Resolve(ctx, tt.id)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.id, err)
			}
			if !bytes.Equal(data, tt.want) || source != tt.source {
				t.Errorf("Resolve(%q) = %d bytes from %s, want %d bytes from %s", tt.id, len(data), source, len(tt.want), tt.source)
			}
		})
	}

	for _, id := range []string{"Nope.ttf", "../etc/passwd", srv.URL + "/missing.ttf"} {
		if _, _, err := r.Resolve(ctx, id); !errors.Is(err, errors.ErrCodeFontNotFound) {
			t.Errorf("Resolve(%q) error = %v, want %s", id, err, errors.ErrCodeFontNotFound)
		}
	}
}

func TestResolverWithoutFetcher(t *testing.T) {
	r := NewResolver(nil)
	if _, _, err := r.Resolve(context.Background(), "https://example.com/font.ttf"); !errors.Is(err, errors.ErrCodeFontNotFound) {
		t.Errorf("Resolve() error = %v, want %s", err, errors.ErrCodeFontNotFound)
	}
}

func TestResolverList(t *testing.T) {
	ctx := context.Background()
	first, _ := NewFileStore(t.TempDir())
	second, _ := NewFileStore(t.TempDir())
	first.Put(ctx, "Zed.ttf", []byte("z"))
	second.Put(ctx, "Zed.ttf", []byte("zz"))
	second.Put(ctx, "Alpha.otf", []byte("a"))

	infos, err := NewResolver(nil, first, second).List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var builtin, stored []string
	for _, info := range infos {
		if info.Source == "builtin" {
			builtin = append(builtin, info.Name)
		} else {
			stored = append(stored, info.Name)
		}
	}
	if len(builtin) != 6 || builtin[0] != "gobold" {
		t.Errorf("builtin = %v", builtin)
	}
	if len(stored) != 2 || stored[0] != "Alpha.otf" || stored[1] != "Zed.ttf" {
		t.Errorf("stored = %v, want [Alpha.otf Zed.ttf]", stored)
	}
	if infos[len(infos)-1].Size != 1 {
		t.Errorf("Zed.ttf size = %d, want 1 (from the first store)", infos[len(infos)-1].Size)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: "keyforge_test"})
	if err != nil {
		t.Fatalf("NewMongoStore() error = %v", err)
	}
	defer s.Close(ctx)

	if err := s.Put(ctx, "Test.ttf", []byte("abc")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "Test.ttf")
	if err != nil || string(got) != "abc" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	if _, err := s.Get(ctx, "Missing.ttf"); !errors.Is(err, errors.ErrCodeFontNotFound) {
		t.Errorf("Get(missing) error = %v, want %s", err, errors.ErrCodeFontNotFound)
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"":                              "goregular",
		"Bold.ttf":                      "Bold.ttf",
		"https://example.com/x/Foo.otf": "Foo.otf",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
