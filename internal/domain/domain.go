// Package domain classifies hosts as enterprise, ignored or dangerous.
package domain

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// Type is the trust class of a host.
type Type string

const (
	Enterprise Type = "ENTERPRISE"
	Ignored    Type = "IGNORED"
	Dangerous  Type = "DANGEROUS"
)

var localhostRe = regexp.MustCompile(`^localhost(:\d*)?$`)

// Classifier matches hosts against the configured domain lists. Entries are
// exact hosts or "*.example.com" wildcards, which also match the apex.
type Classifier struct {
	enterprise []string
	ignored    []string
}

// NewClassifier returns a Classifier. Entries are compared case-insensitively.
func NewClassifier(enterprise, ignored []string) *Classifier {
	return &Classifier{
		enterprise: normalize(enterprise),
		ignored:    normalize(ignored),
	}
}

func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Classify returns the type of host. Enterprise wins over ignored; anything
// that is neither is dangerous.
func (c *Classifier) Classify(host string) Type {
	host = strings.ToLower(host)
	switch {
	case matches(host, c.enterprise):
		return Enterprise
	case matches(host, c.ignored) || IsLocal(host):
		return Ignored
	default:
		return Dangerous
	}
}

// ClassifyURL classifies the host part of raw.
func (c *Classifier) ClassifyURL(raw string) (Type, error) {
	host, err := HostFromURL(raw)
	if err != nil {
		return "", err
	}
	return c.Classify(host), nil
}

func matches(host string, list []string) bool {
	for _, d := range list {
		if d == host {
			return true
		}
		if apex, ok := strings.CutPrefix(d, "*."); ok {
			if host == apex || strings.HasSuffix(host, "."+apex) {
				return true
			}
		}
	}
	return false
}

// IsLocal reports whether host (optionally with a port) is localhost, a
// loopback address or a private network address.
func IsLocal(host string) bool {
	if localhostRe.MatchString(host) {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}

// HostFromURL returns the host (with port, if any) of an absolute URL.
func HostFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return strings.ToLower(u.Host), nil
}
