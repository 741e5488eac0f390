package archive

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

func testResult() *pipeline.Result {
	return &pipeline.Result{
		BatchID: "0123456789abcdef",
		Artifacts: []pipeline.Artifact{
			{ID: "1", Filename: "1_A.stl", Data: bytes.Repeat([]byte{1, 2, 3}, 100)},
			{ID: "2", Filename: "2_plus.stl", Data: []byte("second")},
		},
		Failures: []pipeline.Failure{{ID: "3", Kind: errors.ErrCodeInvalidConfig, Message: "depth out of range"}},
	}
}

func readEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", f.Name, err)
		}
		out[f.Name] = b
	}
	return out
}

func TestWriteContainsArtifacts(t *testing.T) {
	res := testResult()
	data, err := Bytes(res, Options{})
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	entries := readEntries(t, data)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, a := range res.Artifacts {
		if !bytes.Equal(entries[a.Filename], a.Data) {
			t.Errorf("entry %s does not match artifact", a.Filename)
		}
	}
}

func TestWriteReport(t *testing.T) {
	data, err := Bytes(testResult(), Options{Report: true, Level: 9})
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	entries := readEntries(t, data)
	var report pipeline.Result
	if err := json.Unmarshal(entries[ReportName], &report); err != nil {
		t.Fatalf("report.json: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].ID != "3" {
		t.Errorf("report failures = %+v", report.Failures)
	}
}

func TestWriteDeterministic(t *testing.T) {
	a, _ := Bytes(testResult(), Options{Report: true})
	b, _ := Bytes(testResult(), Options{Report: true})
	if !bytes.Equal(a, b) {
		t.Error("archives of identical results differ")
	}
}

func TestWriteRejects(t *testing.T) {
	dup := testResult()
	dup.Artifacts[1].Filename = dup.Artifacts[0].Filename
	if _, err := Bytes(dup, Options{}); !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("duplicate names error = %v, want %s", err, errors.ErrCodeInternal)
	}
	if _, err := Bytes(testResult(), Options{Level: 42}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("bad level error = %v, want %s", err, errors.ErrCodeInvalidConfig)
	}
}

func TestName(t *testing.T) {
	if got := Name(testResult()); got != "keycaps_01234567.zip" {
		t.Errorf("Name() = %q", got)
	}
}
