// Package http serves the reports screen: mount, filter updates, exports
// and health probes.
//
// This file implements utilities for parsing filter updates that arrive as
// either form-encoded (HTMX) or JSON bodies.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sitereports/internal/filtersync"
	"sitereports/internal/services"
)

// maxBodyBytes bounds filter update bodies; a filter is five short strings.
const maxBodyBytes = 16 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Has reports whether key was sent, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFilterUpdate reads the fields a client changed. Fields use the same
// names as the URL query; absent fields are left nil.
func ParseFilterUpdate(r *http.Request) (services.FilterUpdate, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return services.FilterUpdate{}, err
	}

	field := func(name string) *string {
		if !p.Has(name) {
			return nil
		}
		v := p.Get(name)
		return &v
	}
	return services.FilterUpdate{
		Site:       field(filtersync.ParamSite),
		Supervisor: field(filtersync.ParamSupervisor),
		StartDate:  field(filtersync.ParamStartDate),
		EndDate:    field(filtersync.ParamEndDate),
		Tab:        field(filtersync.ParamTab),
	}, nil
}
