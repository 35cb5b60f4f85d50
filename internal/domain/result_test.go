package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func TestDeriveCharset(t *testing.T) {
	cases := []struct {
		contentType string
		mime        string
		charset     string
	}{
		{"text/html; charset=Shift_JIS", "text/html", "SHIFT_JIS"},
		{"application/json", "application/json", "UTF-8"},
		{"application/xml", "application/xml", "UTF-8"},
		{"application/json; charset=iso-8859-1", "application/json", "ISO-8859-1"},
		{"text/csv", "text/csv", "UTF-8"},
		{"image/png", "image/png", ""},
		{"application/octet-stream", "application/octet-stream", ""},
		{"TEXT/Plain", "text/plain", "UTF-8"},
		{"text/plain; charset", "text/plain", "UTF-8"},
	}
	for _, c := range cases {
		mime, cs := DeriveCharset(c.contentType)
		assert.Equal(t, c.mime, mime, c.contentType)
		assert.Equal(t, c.charset, cs, c.contentType)
	}
}

func TestNewResult_Headers(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Reason:     "OK",
		Proto:      "HTTP/1.1",
		Headers: []Header{
			{Name: "X-Request-Id", Value: "first"},
			{Name: "Content-Type", Value: "application/json"},
			{Name: "X-Request-Id", Value: "second"},
		},
		Body: []byte(`{"a":1}`),
	}
	task := NewTask("http://example.test/a", nil)

	r := NewResult(task, resp)

	assert.Same(t, task, r.Task)
	assert.Equal(t, "second", r.Headers["X-Request-Id"])
	assert.Equal(t, "application/json", r.ContentType)
	assert.Equal(t, "UTF-8", r.Charset)
	assert.True(t, r.HasCharset())
}

func TestNewResult_NoContentType(t *testing.T) {
	r := NewResult(NewTask("http://example.test/a", nil), &Response{StatusCode: 200, Body: []byte{0x01}})

	assert.Empty(t, r.ContentType)
	assert.False(t, r.HasCharset())

	_, err := r.Text()
	assert.ErrorIs(t, err, ErrNoCharset)
}

func TestNewResult_Idempotent(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Reason:     "OK",
		Headers:    []Header{{Name: "Content-Type", Value: "text/html; charset=EUC-JP"}},
		Body:       []byte("abc"),
	}
	task := NewTask("http://example.test/a", nil)

	assert.Equal(t, NewResult(task, resp), NewResult(task, resp))
}

func TestResult_TextDecodesCharset(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("こんにちは"))
	require.NoError(t, err)

	r := NewResult(NewTask("http://example.test/a", nil), &Response{
		StatusCode: 200,
		Headers:    []Header{{Name: "Content-Type", Value: "text/plain; charset=Shift_JIS"}},
		Body:       encoded,
	})

	text, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", text)
}

func TestResult_TextUnknownCharset(t *testing.T) {
	r := &Result{Charset: "X-NOT-A-CHARSET", Body: []byte("x")}
	_, err := r.Text()
	assert.Error(t, err)
}

func TestNewTask(t *testing.T) {
	a := NewTask("http://example.test/a", nil)
	b := NewTask("http://example.test/a", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)

	c := NewTask("http://example.test/c", nil, WithID("fixed"))
	assert.Equal(t, "fixed", c.ID)
	assert.Equal(t, Ref{ID: "fixed", URL: "http://example.test/c"}, c.Ref())
}
