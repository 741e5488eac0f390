package cache

import "strconv"

// Keyer derives cache keys.
type Keyer interface {
	// HTTPKey keys a downloaded resource.
	HTTPKey(namespace, key string) string
	// ArtifactKey keys one generated keycap.
	ArtifactKey(fontHash, templateHash string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts are the resolved parameters a generated keycap depends on.
type ArtifactKeyOpts struct {
	Text      string  `json:"text"`
	SizeMm    float64 `json:"size_mm"`
	DepthMm   float64 `json:"depth_mm"`
	OffsetXMm float64 `json:"offset_x_mm"`
	OffsetYMm float64 `json:"offset_y_mm"`
	Mode      string  `json:"mode"`
	Face      string  `json:"face"`
	Scale     string  `json:"scale"`
	Kerning   bool    `json:"kerning"`
	Shaper    string  `json:"shaper"`
	Overflow  string  `json:"overflow"`
	// Version is bumped whenever the generator's output changes.
	Version int `json:"version"`
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// ArtifactKey hashes the inputs into "stl:v<version>:<hash>".
func (DefaultKeyer) ArtifactKey(fontHash, templateHash string, opts ArtifactKeyOpts) string {
	return hashKey("stl:v"+strconv.Itoa(opts.Version), fontHash, templateHash, opts)
}

var _ Keyer = DefaultKeyer{}
