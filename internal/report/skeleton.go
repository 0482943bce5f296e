// Package report drafts the legal intake report for a finished session: a
// section skeleton first, then each section in order with everything already
// written fed forward.
package report

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySkeleton is returned for a skeleton with no sections.
var ErrEmptySkeleton = errors.New("report skeleton has no sections")

// Section is one planned section of the report.
type Section struct {
	Heading     string   `json:"heading" jsonschema:"required" jsonschema_description:"Heading of the section"`
	SubHeadings []string `json:"sub_headings" jsonschema:"required" jsonschema_description:"Sub-headings in the section, in order"`
}

// Skeleton is the ordered section plan. The order is the oracle's and is
// never re-sorted.
type Skeleton struct {
	Sections []Section `json:"skeleton" jsonschema:"required" jsonschema_description:"All sections of the report in order"`
}

// Validate trims headings and rejects an empty skeleton, blank headings and
// duplicate headings. Blank sub-headings are dropped.
func (s *Skeleton) Validate() error {
	if len(s.Sections) == 0 {
		return ErrEmptySkeleton
	}
	seen := make(map[string]bool, len(s.Sections))
	for i := range s.Sections {
		sec := &s.Sections[i]
		sec.Heading = strings.TrimSpace(sec.Heading)
		if sec.Heading == "" {
			return fmt.Errorf("section %d has a blank heading", i+1)
		}
		key := strings.ToLower(sec.Heading)
		if seen[key] {
			return fmt.Errorf("duplicate section heading %q", sec.Heading)
		}
		seen[key] = true

		subs := sec.SubHeadings[:0]
		for _, sh := range sec.SubHeadings {
			if sh = strings.TrimSpace(sh); sh != "" {
				subs = append(subs, sh)
			}
		}
		sec.SubHeadings = subs
	}
	return nil
}

// Headings returns the section headings in order.
func (s Skeleton) Headings() []string {
	out := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		out[i] = sec.Heading
	}
	return out
}

// NewSkeleton builds a skeleton from headings with no sub-headings.
func NewSkeleton(headings ...string) Skeleton {
	var s Skeleton
	for _, h := range headings {
		s.Sections = append(s.Sections, Section{Heading: h})
	}
	return s
}
