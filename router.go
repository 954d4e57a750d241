// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// AnyTopic is the topic suffix used for calls no pin claims.
const AnyTopic = "any"

// Pin is a routing rule: field name to exact value or glob expression.
type Pin map[string]any

// pinRecord is a compiled Pin. fallback indexes the more general record
// registered earlier, or -1.
type pinRecord struct {
	pin      Pin
	exact    map[string]string
	globs    map[string]glob.Glob
	fallback int
}

// Router selects the pin, and from it the topic, for an outgoing call.
type Router struct {
	records []pinRecord
}

// NewRouter compiles pins in registration order.
func NewRouter(pins []Pin) (*Router, error) {
	r := &Router{records: make([]pinRecord, 0, len(pins))}
	for _, pin := range pins {
		if err := r.add(pin); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Router) add(pin Pin) error {
	rec := pinRecord{
		pin:      pin,
		exact:    make(map[string]string),
		globs:    make(map[string]glob.Glob),
		fallback: -1,
	}
	for k, v := range pin {
		s, ok := v.(string)
		if ok && isGlob(s) {
			g, err := glob.Compile(globEscaper.Replace(s))
			if err != nil {
				return fmt.Errorf("pin %s: bad glob %q: %w", k, s, err)
			}
			rec.globs[k] = g
			continue
		}
		rec.exact[k] = argString(v)
	}

	best := -1
	for i := range r.records {
		prev := &r.records[i]
		if !subset(prev.exact, rec.exact) {
			continue
		}
		if best < 0 || len(prev.exact) > len(r.records[best].exact) {
			best = i
		}
	}
	rec.fallback = best

	r.records = append(r.records, rec)
	return nil
}

// FindPin returns the pin that routes args. The most specific record whose
// exact fields match is tried first (later registrations win ties); when one
// of its globs rejects args the fallback chain is walked.
func (r *Router) FindPin(args map[string]any) (Pin, bool) {
	best := -1
	for i := range r.records {
		rec := &r.records[i]
		if !rec.matchExact(args) {
			continue
		}
		if best < 0 || len(rec.exact) >= len(r.records[best].exact) {
			best = i
		}
	}
	for i := best; i >= 0; i = r.records[i].fallback {
		if r.records[i].matchGlobs(args) {
			return r.records[i].pin, true
		}
	}
	return nil, false
}

// Has reports whether some pin routes args.
func (r *Router) Has(args map[string]any) bool {
	_, ok := r.FindPin(args)
	return ok
}

// Len returns the number of registered pins.
func (r *Router) Len() int {
	return len(r.records)
}

func (rec *pinRecord) matchExact(args map[string]any) bool {
	for k, want := range rec.exact {
		if argString(args[k]) != want {
			return false
		}
	}
	return true
}

func (rec *pinRecord) matchGlobs(args map[string]any) bool {
	for k, g := range rec.globs {
		if !g.Match(argString(args[k])) {
			return false
		}
	}
	return true
}

// Topic derives the sender key for pin and the concrete values in args.
// A nil pin yields the reserved "any" topic.
func Topic(prefix string, pin Pin, args map[string]any) string {
	if pin == nil {
		return prefix + AnyTopic
	}
	keys := make([]string, 0, len(pin))
	for k := range pin {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %s: '%s'", k, argString(args[k]))
	}
	if len(keys) > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString("}")
	return prefix + sanitizeTopic(sb.String())
}

func sanitizeTopic(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

// isGlob reports a wildcard pin value. Only '*' makes a value a glob; once it
// is one, '?' matches a single character.
func isGlob(s string) bool {
	return strings.Contains(s, "*")
}

// globEscaper quotes the glob syntax pins do not support.
var globEscaper = strings.NewReplacer(
	`\`, `\`,
	"[", `\[`,
	"]", `\]`,
	"{", `\{`,
	"}", `\}`,
)

// subset reports whether every field of a is present in b with the same value.
func subset(a, b map[string]string) bool {
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func argString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
