// Package entity maps free text to canonical lending platforms and banks
// through fixed keyword tables.
package entity

import (
	"strings"

	"github.com/sells-group/lending-harvest/internal/model"
)

// Group is a canonical entity group and the surface forms that identify it.
// Keyword order matters: the first keyword found in a text names the match.
type Group struct {
	Name     string
	Kind     model.RecordKind
	Keywords []string
}

// Match is one recognized entity. Name is the keyword that matched; Offset
// is its byte position in the scanned text.
type Match struct {
	Group  string
	Name   string
	Kind   model.RecordKind
	Offset int
}

// Recognizer scans text against an ordered list of groups. It is immutable
// and safe for concurrent use.
type Recognizer struct {
	groups []Group
}

// New creates a Recognizer over groups in the given order.
func New(groups ...Group) *Recognizer {
	cp := make([]Group, len(groups))
	for i, g := range groups {
		cp[i] = Group{Name: g.Name, Kind: g.Kind, Keywords: append([]string(nil), g.Keywords...)}
		if cp[i].Kind == "" {
			cp[i].Kind = model.KindPlatform
		}
	}
	return &Recognizer{groups: cp}
}

// NewDefault returns the platform table followed by the bank table.
func NewDefault() *Recognizer {
	all := append(append([]Group{}, PlatformGroups...), BankGroups...)
	return New(all...)
}

// Recognize returns at most one match per group, in group order. Matching
// is case-sensitive substring containment; within a group the first
// keyword present wins.
func (r *Recognizer) Recognize(text string) []Match {
	if text == "" {
		return nil
	}
	var out []Match
	for _, g := range r.groups {
		for _, kw := range g.Keywords {
			if i := strings.Index(text, kw); i >= 0 {
				out = append(out, Match{Group: g.Name, Name: kw, Kind: g.Kind, Offset: i})
				break
			}
		}
	}
	return out
}

// First returns the first match in group order.
func (r *Recognizer) First(text string) (Match, bool) {
	for _, g := range r.groups {
		for _, kw := range g.Keywords {
			if i := strings.Index(text, kw); i >= 0 {
				return Match{Group: g.Name, Name: kw, Kind: g.Kind, Offset: i}, true
			}
		}
	}
	return Match{}, false
}

// GroupOf returns the group a keyword belongs to.
func (r *Recognizer) GroupOf(name string) (string, bool) {
	for _, g := range r.groups {
		for _, kw := range g.Keywords {
			if kw == name {
				return g.Name, true
			}
		}
	}
	return "", false
}

// Keywords returns every keyword of the given kind, or of all kinds when
// kind is empty.
func (r *Recognizer) Keywords(kind model.RecordKind) []string {
	var out []string
	for _, g := range r.groups {
		if kind != "" && g.Kind != kind {
			continue
		}
		out = append(out, g.Keywords...)
	}
	return out
}

// Groups returns a copy of the group table.
func (r *Recognizer) Groups() []Group {
	out := make([]Group, len(r.groups))
	copy(out, r.groups)
	return out
}
