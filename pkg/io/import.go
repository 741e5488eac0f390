package io

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/titanous/json5"

	"github.com/matzehuels/keyforge/pkg/errors"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

// MaxRequestBytes bounds the size of a batch file.
const MaxRequestBytes = 4 << 20

// ReadRequest decodes a JSON5 batch request from r.
func ReadRequest(r io.Reader) (pipeline.Request, error) {
	var req pipeline.Request
	data, err := io.ReadAll(io.LimitReader(r, MaxRequestBytes+1))
	if err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request")
	}
	if len(data) > MaxRequestBytes {
		return req, errors.New(errors.ErrCodeInvalidInput, "request larger than %d bytes", MaxRequestBytes)
	}
	return DecodeRequest(data)
}

// DecodeRequest decodes a JSON5 (or plain JSON) batch request.
func DecodeRequest(data []byte) (pipeline.Request, error) {
	var req pipeline.Request

	// JSON5 is normalized to JSON first so custom JSON decoders see
	// standard syntax.
	var raw any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse request")
	}
	plain, err := json.Marshal(raw)
	if err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse request")
	}

	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request")
	}
	return req, nil
}

// ImportRequest reads a batch request from the file at path.
func ImportRequest(path string) (pipeline.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return pipeline.Request{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()
	return ReadRequest(f)
}
