// Package locator describes where and how a script is fetched: the partial
// ScriptLocator returned by resolvers, its Normalized form with all defaults
// applied, and the CacheEntry snapshot persisted for change detection.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout applies when a locator does not set one.
const DefaultTimeout = 30 * time.Second

// Method is the HTTP method used to download a script.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// VerifyMode controls code-signing verification of downloaded bundles.
type VerifyMode string

const (
	VerifyOff    VerifyMode = "off"
	VerifyLax    VerifyMode = "lax"
	VerifyStrict VerifyMode = "strict"
)

// Query is either a raw query string or a set of values.
type Query struct {
	Raw    string
	Values url.Values
}

// QueryString returns a Query holding a raw, already encoded string.
func QueryString(raw string) Query { return Query{Raw: raw} }

// QueryMap returns a Query built from single-valued pairs.
func QueryMap(m map[string]string) Query {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return Query{Values: v}
}

// Encode renders the query without a leading '?'.
func (q Query) Encode() string {
	if len(q.Values) > 0 {
		return q.Values.Encode()
	}
	return strings.TrimPrefix(q.Raw, "?")
}

// Body is the request body for POST downloads: a raw string or form values.
type Body struct {
	Raw  *string
	Form url.Values
}

// BodyString returns a raw string body.
func BodyString(s string) Body { return Body{Raw: &s} }

// BodyForm returns a form body, persisted as a JSON object.
func BodyForm(v url.Values) Body { return Body{Form: v} }

func (b Body) encode() (*string, error) {
	if b.Form != nil {
		obj := make(map[string]string, len(b.Form))
		for k, vals := range b.Form {
			if len(vals) > 0 {
				obj[k] = vals[len(vals)-1]
			}
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to encode form body: %w", err)
		}
		s := string(raw)
		return &s, nil
	}
	return b.Raw, nil
}

// ShouldUpdateFunc overrides the cache decision. old is nil on the first
// resolution of a script. Its result is authoritative for cached scripts.
type ShouldUpdateFunc func(ctx context.Context, old *CacheEntry, candidate *Normalized, outdated bool) (bool, error)

// ScriptLocator is the partial description of a script returned by a
// resolver. Zero values mean "use the default".
type ScriptLocator struct {
	URL        string
	Method     Method
	Query      Query
	Headers    map[string]string
	Body       Body
	Timeout    time.Duration
	Retry      int
	RetryDelay time.Duration
	// Cache defaults to true when nil.
	Cache                 *bool
	Absolute              bool
	ShouldUpdateScript    ShouldUpdateFunc
	VerifyScriptSignature VerifyMode
}

// Bool returns a pointer to b, for ScriptLocator.Cache literals.
func Bool(b bool) *bool { return &b }

// CacheEntry is the persisted snapshot of a normalized locator.
type CacheEntry struct {
	UniqueID              string            `json:"uniqueId"`
	Method                Method            `json:"method"`
	URL                   string            `json:"url"`
	Query                 string            `json:"query,omitempty"`
	Headers               map[string]string `json:"headers,omitempty"`
	Body                  *string           `json:"body,omitempty"`
	Timeout               time.Duration     `json:"timeout"`
	Retry                 int               `json:"retry"`
	RetryDelay            time.Duration     `json:"retryDelay"`
	Absolute              bool              `json:"absolute"`
	VerifyScriptSignature VerifyMode        `json:"verifyScriptSignature"`
}

// Outdated reports whether candidate differs from the entry in any field
// that affects the downloaded bytes: method, url, query, headers or body.
func (e *CacheEntry) Outdated(candidate *Normalized) bool {
	if e == nil {
		return true
	}
	return e.Method != candidate.Method ||
		e.URL != candidate.URL ||
		e.Query != candidate.Query ||
		!maps.Equal(e.Headers, candidate.Headers) ||
		!equalBody(e.Body, candidate.Body)
}

func equalBody(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Normalized is a ScriptLocator with every default applied, plus the
// fetch decision made by the cache.
type Normalized struct {
	CacheEntry
	Cache              bool             `json:"cache"`
	Fetch              bool             `json:"fetch"`
	ShouldUpdateScript ShouldUpdateFunc `json:"-"`
}

// Entry returns the persisted snapshot of n.
func (n *Normalized) Entry() CacheEntry {
	e := n.CacheEntry
	e.Headers = maps.Clone(n.Headers)
	return e
}

// RequestURL is the URL with the query appended.
func (n *Normalized) RequestURL() string {
	if n.Query == "" {
		return n.URL
	}
	sep := "?"
	if strings.Contains(n.URL, "?") {
		sep = "&"
	}
	return n.URL + sep + n.Query
}

// UniqueID derives the cache and dedup key of a script.
func UniqueID(scriptID, caller string) string {
	if caller != "" {
		return caller + "_" + scriptID
	}
	return scriptID
}

// Normalize applies defaults to l and validates it. Fetch is forced to true
// when caching is disabled; otherwise the cache decides it later.
func Normalize(scriptID, caller string, l *ScriptLocator) (*Normalized, error) {
	if l == nil {
		return nil, fmt.Errorf("locator for script %q is nil", scriptID)
	}
	if l.URL == "" {
		return nil, fmt.Errorf("locator for script %q has an empty url", scriptID)
	}

	method := Method(strings.ToUpper(string(l.Method)))
	switch method {
	case "":
		method = MethodGet
	case MethodGet, MethodPost:
	default:
		return nil, fmt.Errorf("locator for script %q has unsupported method %q", scriptID, l.Method)
	}

	verify := l.VerifyScriptSignature
	switch verify {
	case "":
		verify = VerifyOff
	case VerifyOff, VerifyLax, VerifyStrict:
	default:
		return nil, fmt.Errorf("locator for script %q has unknown verifyScriptSignature %q", scriptID, verify)
	}

	if l.Retry < 0 {
		return nil, fmt.Errorf("locator for script %q has negative retry %d", scriptID, l.Retry)
	}
	if l.Timeout < 0 || l.RetryDelay < 0 {
		return nil, fmt.Errorf("locator for script %q has a negative duration", scriptID)
	}

	timeout := l.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var headers map[string]string
	if len(l.Headers) > 0 {
		headers = make(map[string]string, len(l.Headers))
		for k, v := range l.Headers {
			headers[strings.ToLower(k)] = v
		}
	}

	body, err := l.Body.encode()
	if err != nil {
		return nil, err
	}

	cache := l.Cache == nil || *l.Cache

	return &Normalized{
		CacheEntry: CacheEntry{
			UniqueID:              UniqueID(scriptID, caller),
			Method:                method,
			URL:                   l.URL,
			Query:                 l.Query.Encode(),
			Headers:               headers,
			Body:                  body,
			Timeout:               timeout,
			Retry:                 l.Retry,
			RetryDelay:            l.RetryDelay,
			Absolute:              l.Absolute,
			VerifyScriptSignature: verify,
		},
		Cache:              cache,
		Fetch:              !cache,
		ShouldUpdateScript: l.ShouldUpdateScript,
	}, nil
}
