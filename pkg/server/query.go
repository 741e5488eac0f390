package server

import (
	"net/url"
	"strconv"

	"github.com/matzehuels/keyforge/pkg/errors"
)

// query reads typed query parameters, keeping the first parse error.
type query struct {
	v   url.Values
	err error
}

func newQuery(v url.Values) *query {
	return &query{v: v}
}

func (q *query) str(name, def string) string {
	if s := q.v.Get(name); s != "" {
		return s
	}
	return def
}

func (q *query) float(name string) *float64 {
	s := q.v.Get(name)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.fail(name, s)
		return nil
	}
	return &f
}

func (q *query) intv(name string, def int64) int64 {
	s := q.v.Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		q.fail(name, s)
		return def
	}
	return n
}

func (q *query) bool(name string) bool {
	s := q.v.Get(name)
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		q.fail(name, s)
	}
	return b
}

func (q *query) fail(name, value string) {
	if q.err == nil {
		q.err = errors.New(errors.ErrCodeInvalidInput, "bad value %q for query parameter %s", value, name)
	}
}
