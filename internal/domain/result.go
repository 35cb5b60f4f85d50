package domain

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

var ErrNoCharset = errors.New("result: charset is not known")

// Header is a single response header as delivered by the transport.
type Header struct {
	Name  string
	Value string
}

// Response is the raw outcome of one HTTP exchange.
type Response struct {
	StatusCode int
	Reason     string
	Proto      string
	Headers    []Header
	Body       []byte
}

// Header returns the last value of the named header, matching case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			value, found = h.Value, true
		}
	}
	return value, found
}

// CharsetTable maps MIME types without an explicit charset parameter to a charset.
var CharsetTable = map[string]string{
	"application/xml":  "UTF-8",
	"application/json": "UTF-8",
}

// Result is the normalized outcome of a successful exchange.
type Result struct {
	Task        *Task
	StatusCode  int
	Reason      string
	Proto       string
	Headers     map[string]string
	Body        []byte
	ContentType string // MIME type without parameters, "" when absent
	Charset     string // "" when it cannot be derived
}

func NewResult(t *Task, resp *Response) *Result {
	r := &Result{
		Task:       t,
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason,
		Proto:      resp.Proto,
		Headers:    make(map[string]string, len(resp.Headers)),
		Body:       resp.Body,
	}
	for _, h := range resp.Headers {
		r.Headers[h.Name] = h.Value
	}
	if ct, ok := resp.Header("Content-Type"); ok {
		r.ContentType, r.Charset = DeriveCharset(ct)
	}
	return r
}

// DeriveCharset parses a Content-Type value and returns its MIME type and charset.
func DeriveCharset(contentType string) (mimeType, charset string) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// keep whatever precedes the first parameter
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		params = nil
	}
	if cs := params["charset"]; cs != "" {
		return mediaType, strings.ToUpper(cs)
	}
	if cs, ok := CharsetTable[mediaType]; ok {
		return mediaType, cs
	}
	if strings.HasPrefix(mediaType, "text/") {
		return mediaType, "UTF-8"
	}
	return mediaType, ""
}

func (r *Result) HasCharset() bool { return r.Charset != "" }

// Text decodes Body using Charset.
func (r *Result) Text() (string, error) {
	if r.Charset == "" {
		return "", ErrNoCharset
	}
	if strings.EqualFold(r.Charset, "UTF-8") {
		return string(r.Body), nil
	}
	enc, err := htmlindex.Get(r.Charset)
	if err != nil {
		return "", fmt.Errorf("result: unsupported charset %q: %w", r.Charset, err)
	}
	b, err := enc.NewDecoder().Bytes(r.Body)
	if err != nil {
		return "", fmt.Errorf("result: decode %s: %w", r.Charset, err)
	}
	return string(b), nil
}
