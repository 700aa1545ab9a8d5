package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"fintrack/internal/services"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// top-level values as strings. Numbers keep their literal text so amounts
// like 12.50 reach the decimal parser unchanged.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]json.RawMessage
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: larger than %d bytes", errInvalidBody, maxBodyBytes)
	}
	return p
}

// Parse decodes the body. An empty body parses to no values.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]json.RawMessage)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		return p.err
	}
	if trimmed[0] == '[' {
		p.err = fmt.Errorf("%w: expected an object", errInvalidBody)
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errInvalidBody, p.err)
	}
	return p.err
}

// Get returns the trimmed, sanitized value for key, "" when absent.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if raw, ok := p.jsonData[key]; ok {
			return sanitizeInput(rawValue(raw))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Raw returns the value for key untouched, for secrets such as passwords.
func (p *RequestBodyParser) Raw(key string) string {
	if p.jsonData != nil {
		return rawValue(p.jsonData[key])
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// rawValue renders a JSON scalar as text; objects, arrays and null become "".
func rawValue(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	switch s[0] {
	case '"':
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return out
	case '{', '[':
		return ""
	}
	return s
}

// parseListFilter reads the month, category and type query parameters.
func parseListFilter(q url.Values) services.ListFilter {
	return services.ListFilter{
		Month:    strings.TrimSpace(q.Get("month")),
		Category: strings.TrimSpace(q.Get("category")),
		Type:     strings.TrimSpace(q.Get("type")),
	}
}
