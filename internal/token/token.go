// Package token holds the credentials needed to call the upstream EHR
// sources. It is the only shared mutable state in the service: handlers
// write credentials after an OAuth callback, the aggregator and attachment
// resolver read them, and any adapter observing a 401 invalidates them so
// later calls fail fast instead of retrying with a dead token.
package token

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Source identifies one of the two upstream EHR backends.
type Source string

const (
	// SourceA is the DocumentReference-style backend (documents are
	// searched by LOINC type code, demographics come back unwrapped).
	SourceA Source = "a"

	// SourceB is the DiagnosticReport-style backend (reports are searched
	// by category token, notes via DocumentReference category).
	SourceB Source = "b"
)

// ParseSource converts a path or query value into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceA, SourceB:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

func (s Source) String() string { return string(s) }

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool { return s == SourceA || s == SourceB }

// Credential carries the bearer token(s) required to call one source.
// AccessToken is the source's own OAuth bearer. PlatformToken, when set, is
// the secondary platform bearer some sources require alongside it; the two
// are independent credentials mapped to distinctly named headers, never a
// fallback chain.
type Credential struct {
	Source        Source
	AccessToken   string
	PlatformToken string
}

// ErrMissingCredential signals that no credential is held for the requested
// source. It is terminal for the caller: the fix is re-authentication, which
// this package never attempts itself.
var ErrMissingCredential = errors.New("no credential held for source")

// Context owns credential state for the process. Reads are concurrent;
// invalidation is a single writer and is visible to all subsequent Get
// calls with no stale reads.
type Context struct {
	mu    sync.RWMutex
	creds map[Source]Credential
}

// NewContext returns an empty credential context.
func NewContext() *Context {
	return &Context{creds: make(map[Source]Credential)}
}

// Get returns the credential currently held for source, or
// ErrMissingCredential if none is held.
func (c *Context) Get(source Source) (Credential, error) {
	c.mu.RLock()
	cred, ok := c.creds[source]
	c.mu.RUnlock()

	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrMissingCredential, source)
	}
	return cred, nil
}

// Put stores a credential, replacing any previous credential for the same
// source.
func (c *Context) Put(cred Credential) error {
	if !cred.Source.Valid() {
		return fmt.Errorf("credential has unknown source %q", cred.Source)
	}
	if cred.AccessToken == "" {
		return errors.New("credential has empty access token")
	}

	c.mu.Lock()
	c.creds[cred.Source] = cred
	c.mu.Unlock()
	return nil
}

// Invalidate drops the credential for source. Safe to call when none is
// held.
func (c *Context) Invalidate(source Source) {
	c.mu.Lock()
	delete(c.creds, source)
	c.mu.Unlock()
}

// Sources returns the sources that currently hold a credential, in stable
// order.
func (c *Context) Sources() []Source {
	c.mu.RLock()
	out := make([]Source, 0, len(c.creds))
	for s := range c.creds {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
