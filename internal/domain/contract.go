package domain

import (
	"strings"
	"time"
)

// Boundary classifies an event's trust domain (GLOSSARY).
type Boundary string

const (
	BoundaryIntra Boundary = "intra"
	BoundaryInter Boundary = "inter"
	BoundaryExtra Boundary = "extra"
)

// WildcardTarget is the contract "to" value that matches every node.
const WildcardTarget = "*"

// Contract is a directed permission from one node to another.
type Contract struct {
	ID                string
	From              string
	To                string
	AllowedEventTypes []string
	Boundaries        map[Boundary]struct{}
	CreatedAt         time.Time
	ExpiresAt         *time.Time
}

// Expired reports whether the contract has passed its expiry.
func (c *Contract) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// BoundaryAllowed reports whether b is permitted by this contract.
func (c *Contract) BoundaryAllowed(b Boundary) bool {
	_, ok := c.Boundaries[b]
	return ok
}

// MatchesEventType applies the exact/wildcard/prefix-dot-star rules:
// each pattern is an exact type, "*" (match any), or a prefix ending
// in ".*" (match types whose first segment equals the prefix).
func (c *Contract) MatchesEventType(eventType string) bool {
	for _, pattern := range c.AllowedEventTypes {
		if MatchEventTypePattern(pattern, eventType) {
			return true
		}
	}
	return false
}

// MatchEventTypePattern implements the single-pattern matching rule
// shared by contracts and the turn-taking wildcard table
// used by the Relay Client.
func MatchEventTypePattern(pattern, eventType string) bool {
	if pattern == WildcardTarget {
		return true
	}
	if pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(eventType, prefix+".")
	}
	return false
}

// SameShape reports whether two contracts would be duplicates.
func (c *Contract) SameShape(other *Contract) bool {
	if c.From != other.From || c.To != other.To {
		return false
	}
	if len(c.AllowedEventTypes) != len(other.AllowedEventTypes) {
		return false
	}
	want := make(map[string]struct{}, len(c.AllowedEventTypes))
	for _, t := range c.AllowedEventTypes {
		want[t] = struct{}{}
	}
	for _, t := range other.AllowedEventTypes {
		if _, ok := want[t]; !ok {
			return false
		}
	}
	if len(c.Boundaries) != len(other.Boundaries) {
		return false
	}
	for b := range c.Boundaries {
		if _, ok := other.Boundaries[b]; !ok {
			return false
		}
	}
	return true
}
