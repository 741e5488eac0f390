package atlas

import (
	"context"
	"math"
	"reflect"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/matzehuels/keyforge/pkg/errors"
)

func loadRegular(t *testing.T) *Font {
	t.Helper()
	f, err := Load(goregular.TTF)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return f
}

func TestLoad(t *testing.T) {
	f := loadRegular(t)
	if f.UnitsPerEm() != 2048 {
		t.Errorf("UnitsPerEm() = %v, want 2048", f.UnitsPerEm())
	}
	if f.Family() != "Go" {
		t.Errorf("Family() = %q, want %q", f.Family(), "Go")
	}
	if ch := f.CapHeight(); ch <= 0 || ch >= f.UnitsPerEm() {
		t.Errorf("CapHeight() = %v, want within (0, %v)", ch, f.UnitsPerEm())
	}
	if f.Ascent() <= 0 {
		t.Errorf("Ascent() = %v, want > 0", f.Ascent())
	}
	if len(f.Hash()) != 64 {
		t.Errorf("Hash() = %q, want 64 hex chars", f.Hash())
	}
	if f.ShapingFace() == nil {
		t.Error("ShapingFace() = nil for a TrueType font")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"short header", []byte{0, 1, 0, 0, 0, 4}},
		{"collection tag only", []byte("ttcf\x00\x01\x00\x00\x00\x00\x00\x01")},
		{"text", []byte("definitely not a font")},
		{"truncated", goregular.TTF[:64]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data)
			if !errors.Is(err, errors.ErrCodeFontParse) {
				t.Errorf("Load() error = %v, want %s", err, errors.ErrCodeFontParse)
			}
		})
	}
}

func TestOutline(t *testing.T) {
	f := loadRegular(t)
	tests := []struct {
		r            rune
		wantContours int
	}{
		{'I', 1},
		{'O', 2},
		{'8', 3},
		{'5', 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			o, err := f.Outline(tt.r)
			if err != nil {
				t.Fatalf("Outline() error = %v", err)
			}
			if len(o.Contours) != tt.wantContours {
				t.Errorf("len(Contours) = %d, want %d", len(o.Contours), tt.wantContours)
			}
			if o.Advance <= 0 || o.Advance != f.Advance(tt.r) {
				t.Errorf("Advance = %v, Advance(r) = %v", o.Advance, f.Advance(tt.r))
			}
			b := o.Bounds()
			if b.Min.Y < -f.Descent() || b.Max.Y <= 0 || b.Max.Y > f.Ascent() {
				t.Errorf("bounds %v outside the line", b)
			}
		})
	}
}

func TestOutlineCapHeight(t *testing.T) {
	f := loadRegular(t)
	o, err := f.Outline('H')
	if err != nil {
		t.Fatalf("Outline() error = %v", err)
	}
	if got := o.Bounds().Max.Y; math.Abs(got-f.CapHeight()) > 0.02*f.UnitsPerEm() {
		t.Errorf("H top = %v, want cap height %v", got, f.CapHeight())
	}
}

func TestOutlineDeterministic(t *testing.T) {
	f := loadRegular(t)
	a, _ := f.Outline('g')
	b, _ := f.Outline('g')
	if !reflect.DeepEqual(a, b) {
		t.Error("Outline() is not deterministic")
	}
}

func TestMissingGlyph(t *testing.T) {
	f := loadRegular(t)
	_, err := f.Outline('\U0001F600')
	if !errors.Is(err, errors.ErrCodeGlyphNotFound) {
		t.Errorf("Outline() error = %v, want %s", err, errors.ErrCodeGlyphNotFound)
	}
	if got, want := f.Advance('\U0001F600'), f.Fallback().Advance; got != want {
		t.Errorf("Advance() = %v, want fallback advance %v", got, want)
	}
	if got := f.Kern('\U0001F600', 'A'); got != 0 {
		t.Errorf("Kern() = %v, want 0", got)
	}
}

func TestSpaceIsEmpty(t *testing.T) {
	f := loadRegular(t)
	o, err := f.Outline(' ')
	if err != nil {
		t.Fatalf("Outline(' ') error = %v", err)
	}
	if !o.IsEmpty() {
		t.Errorf("space has %d contours", len(o.Contours))
	}
	if o.Advance <= 0 {
		t.Errorf("space advance = %v", o.Advance)
	}
}

func TestFallback(t *testing.T) {
	f := loadRegular(t)
	fb := f.Fallback()
	if len(fb.Contours) != 2 {
		t.Fatalf("len(Contours) = %d, want 2", len(fb.Contours))
	}
	b := fb.Bounds()
	if b.Min.Y != 0 || b.Max.Y != f.CapHeight() {
		t.Errorf("fallback spans y %v..%v, want 0..%v", b.Min.Y, b.Max.Y, f.CapHeight())
	}
	if fb.Advance <= b.Max.X {
		t.Errorf("fallback advance %v inside its box (max x %v)", fb.Advance, b.Max.X)
	}
}

func TestGlyphOutlineByIndex(t *testing.T) {
	f := loadRegular(t)
	if _, err := f.GlyphOutline(uint16(f.NumGlyphs())); !errors.Is(err, errors.ErrCodeGlyphNotFound) {
		t.Errorf("GlyphOutline(out of range) error = %v", err)
	}
}

func TestCacheLoad(t *testing.T) {
	c, err := NewCache(4)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	ctx := context.Background()

	a, err := c.Load(ctx, goregular.TTF)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	b, err := c.Load(ctx, append([]byte(nil), goregular.TTF...))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if a != b {
		t.Error("identical bytes produced different handles")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, size 1", s)
	}
	if got, ok := c.Get(a.Hash()); !ok || got != a {
		t.Error("Get(hash) did not return the cached font")
	}
}

func TestCacheConcurrentLoadParsesOnce(t *testing.T) {
	c, _ := NewCache(4)
	ctx := context.Background()

	const n = 16
	fonts := make([]*Font, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fonts[i], _ = c.Load(ctx, goregular.TTF)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if fonts[i] == nil || fonts[i] != fonts[0] {
			t.Fatalf("load %d returned a different handle", i)
		}
	}
	if got := c.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestCacheEvicts(t *testing.T) {
	c, _ := NewCache(1)
	ctx := context.Background()
	regular, _ := c.Load(ctx, goregular.TTF)
	if _, err := c.Load(ctx, gobold.TTF); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := c.Get(regular.Hash()); ok {
		t.Error("least recently used font was not evicted")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestCacheLoadCancelled(t *testing.T) {
	c, _ := NewCache(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Load(ctx, goregular.TTF); !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("Load() error = %v, want %s", err, errors.ErrCodeTimeout)
	}
}
