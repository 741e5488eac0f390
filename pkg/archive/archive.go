// Package archive packs a batch of generated keycaps into a ZIP file.
//
// Every artifact is stored as an opaque, deflate-compressed entry. An
// optional report.json entry carries the batch summary so a downloaded
// archive explains any keycap that is missing from it.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/keyforge/pkg/errors"
	kio "github.com/matzehuels/keyforge/pkg/io"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

// ReportName is the archive entry holding the batch report.
const ReportName = "report.json"

// Options configures [Write].
type Options struct {
	// Report adds report.json.
	Report bool
	// Level is the deflate level; zero selects flate.DefaultCompression.
	Level int
	// Modified stamps every entry; zero uses the zip epoch so archives of
	// identical batches are byte-identical.
	Modified time.Time
}

var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Write writes the artifacts of res to w as a ZIP archive.
func Write(w io.Writer, res *pipeline.Result, opts Options) error {
	level := opts.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return errors.New(errors.ErrCodeInvalidConfig, "compression level %d out of range", level)
	}
	modified := opts.Modified
	if modified.IsZero() {
		modified = epoch
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	seen := make(map[string]bool, len(res.Artifacts))
	for _, a := range res.Artifacts {
		if seen[a.Filename] || a.Filename == ReportName {
			return errors.New(errors.ErrCodeInternal, "duplicate archive entry %s", a.Filename)
		}
		seen[a.Filename] = true
		if err := add(zw, a.Filename, a.Data, modified); err != nil {
			return err
		}
	}

	if opts.Report {
		var buf bytes.Buffer
		if err := kio.WriteReport(res, &buf); err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "encode report")
		}
		if err := add(zw, ReportName, buf.Bytes(), modified); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "close archive")
	}
	return nil
}

// Bytes returns the archive as a byte slice.
func Bytes(res *pipeline.Result, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, res, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Name returns the download name of a batch archive.
func Name(res *pipeline.Result) string {
	id := res.BatchID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("keycaps_%s.zip", id)
}

func add(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "add %s", name)
	}
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "write %s", name)
	}
	return nil
}
