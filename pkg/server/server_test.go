package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/fontstore"
	"github.com/matzehuels/keyforge/pkg/observability"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

func testServer(t *testing.T) (*httptest.Server, *fontstore.FileStore) {
	t.Helper()
	files, err := fontstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	logger := log.New(io.Discard)
	resolver := fontstore.NewResolver(nil, files)
	runner := pipeline.NewRunner(nil, nil, logger)
	runner.Fonts = resolver
	s := New(runner, resolver, files, logger, Options{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, files
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	ts, _ := testServer(t)
	resp := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["service"] != "keyforge" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	ts, _ := testServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/nope", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeError(t, resp)
	if body.Error.Code != errors.ErrCodeNotFound || body.Error.RequestID != "abc-123" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestMachines(t *testing.T) {
	ts, _ := testServer(t)
	resp := get(t, ts.URL+"/machines")
	var body struct {
		Machines []machineInfo `json:"machines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Machines) != 3 {
		t.Fatalf("len(machines) = %d, want 3", len(body.Machines))
	}
	defaults := 0
	for _, m := range body.Machines {
		if m.Default {
			defaults++
			if m.Name != "ep133" {
				t.Errorf("default machine = %s, want ep133", m.Name)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("%d default machines, want 1", defaults)
	}
}

func TestFontsUploadAndList(t *testing.T) {
	ts, _ := testServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "Mono.ttf")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(gomono.TTF)
	mw.Close()

	resp, err := http.Post(ts.URL+"/fonts", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", resp.StatusCode)
	}

	list := get(t, ts.URL+"/fonts")
	var body struct {
		Fonts []fontstore.Info `json:"fonts"`
	}
	if err := json.NewDecoder(list.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range body.Fonts {
		if f.Name == "Mono.ttf" {
			found = true
		}
	}
	if !found {
		t.Errorf("uploaded font missing from %+v", body.Fonts)
	}

	stl := get(t, ts.URL+"/generate/7?font=Mono.ttf&size=6")
	if stl.StatusCode != http.StatusOK {
		t.Errorf("generate with uploaded font status = %d, want 200", stl.StatusCode)
	}
}

func TestUploadRejectsGarbage(t *testing.T) {
	ts, _ := testServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "Junk.ttf")
	fw.Write([]byte("not a font"))
	mw.Close()

	resp, err := http.Post(ts.URL+"/fonts", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body := decodeError(t, resp); body.Error.Code != errors.ErrCodeFontParse {
		t.Errorf("code = %s, want %s", body.Error.Code, errors.ErrCodeFontParse)
	}
}

func TestGenerateOne(t *testing.T) {
	ts, _ := testServer(t)
	resp := get(t, ts.URL+"/generate/%2B?size=6")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "model/stl" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "1_plus.stl") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) < 84 || (len(data)-84)%50 != 0 {
		t.Errorf("body is %d bytes, not a binary STL", len(data))
	}
}

func TestGenerateOneErrors(t *testing.T) {
	ts, _ := testServer(t)
	tests := []struct {
		name   string
		path   string
		status int
		code   errors.Code
	}{
		{"text too long", "/generate/ABCDE", http.StatusBadRequest, errors.ErrCodeInvalidText},
		{"bad number", "/generate/1?size=big", http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"size out of range", "/generate/1?size=40", http.StatusBadRequest, errors.ErrCodeInvalidConfig},
		{"unknown machine", "/generate/1?machine=tr8", http.StatusBadRequest, errors.ErrCodeInvalidMachine},
		{"unknown font", "/generate/1?font=Missing.ttf", http.StatusNotFound, errors.ErrCodeFontNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts.URL+tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body := decodeError(t, resp); body.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Error.Code, tt.code)
			}
		})
	}
}

func TestGenerateBatch(t *testing.T) {
	ts, _ := testServer(t)
	body := `{
		defaults: {size_mm: 6},
		keycaps: [{id: 1, text: "1"}, {id: 2, text: "ABCDE"}, {id: 3, text: "-"}],
	}`
	resp, err := http.Post(ts.URL+"/generate", "application/json5", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Failures"); got != "1" {
		t.Errorf("X-Failures = %q, want 1", got)
	}
	if resp.Header.Get("X-Batch-ID") == "" {
		t.Error("missing X-Batch-ID")
	}

	data, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"1_1.stl", "3_minus.stl", "report.json"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestGenerateBatchAllFailed(t *testing.T) {
	ts, _ := testServer(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{keycaps: [`, http.StatusBadRequest},
		{"no keycaps", `{keycaps: []}`, http.StatusBadRequest},
		{"all invalid", `{keycaps: [{id: 1, text: "TOOLONG"}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/generate", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	ts, _ := testServer(t)
	resp := get(t, ts.URL+"/preview/A?px=64&size=8")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("image is %v, want 64x64", b)
	}

	bad := get(t, ts.URL+"/preview/A?face=side")
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad face status = %d, want 400", bad.StatusCode)
	}
}

func TestStats(t *testing.T) {
	logger := log.New(io.Discard)
	runner := pipeline.NewRunner(nil, nil, logger)
	s := New(runner, nil, nil, logger, Options{})
	s.RegisterHooks()
	t.Cleanup(observability.Reset)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	get(t, ts.URL+"/generate/1?size=6")
	get(t, ts.URL+"/generate/1?size=6&depth=5")

	resp := get(t, ts.URL+"/stats")
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	// The second batch is rejected before any keycap runs.
	if snap.Batches != 2 || snap.Items != 1 || snap.Failures != 0 {
		t.Errorf("stats = %+v, want two batches with one item", snap)
	}
	if snap.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", snap.CacheMisses)
	}
}
