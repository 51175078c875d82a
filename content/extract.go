// Package content splits a document of drafted posts into numbered units
// that can be published one at a time.
//
// A document looks like this:
//
//	## Post 1: Launching our new site
//	**Audience:** Organization
//	### Post Content
//	We just launched! #launch
//	---
//
// Only the text between the "### Post Content" sub-heading and the next
// "---" rule is kept. Units are numbered from 1 in document order.
package content

import (
	"errors"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/alexflint/go-restructure"
)

// ErrMalformedDocument is returned for documents that cannot be parsed and
// for unit ids outside the parsed range
var ErrMalformedDocument = errors.New("malformed document")

// Audience is who a unit is posted as
type Audience int

const (
	Organization Audience = iota
	PersonalProfile
)

func (a Audience) String() string {
	switch a {
	case Organization:
		return "organization"
	case PersonalProfile:
		return "personal"
	}
	return fmt.Sprintf("Audience(%d)", int(a))
}

// ParseAudience parses the value of an audience line
func ParseAudience(s string) (Audience, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organization", "organisation", "company", "page":
		return Organization, nil
	case "personal", "personal profile", "profile", "member":
		return PersonalProfile, nil
	}
	return 0, fmt.Errorf("unknown audience %q", s)
}

// Unit is one publishable post
type Unit struct {
	ID       int // 1-based position among the units of the document
	Title    string
	Body     string
	Audience Audience
}

// Document is the ordered set of units parsed from a text
type Document struct {
	Units []Unit
}

// Unit returns the unit with the given 1-based id
func (d *Document) Unit(id int) (*Unit, error) {
	if id < 1 || id > len(d.Units) {
		return nil, fmt.Errorf("%w: post %d does not exist, document has %d posts", ErrMalformedDocument, id, len(d.Units))
	}
	return &d.Units[id-1], nil
}

// "## Post 2: Title" starts a section. The "Post 2:" prefix is optional and
// is not part of the title.
type sectionHeading struct {
	_     string `^##\s+`
	_     string `(?i:(?:blog\s+)?post\s*#?\d+\s*[:.\-]\s*)?`
	Title string `.*\S`
	_     string `\s*$`
}

// "**Audience:** Personal" sets the audience of a section
type audienceLine struct {
	_     string `^\s*(?:\*\*)?(?i:audience)(?:\*\*)?\s*:\s*(?:\*\*)?\s*`
	Value string `[A-Za-z][A-Za-z \-]*`
	_     string `\s*$`
}

// "### Post Content" opens the body of a section
type contentHeading struct {
	_ string `^###\s+(?i:post\s+content)\s*:?\s*$`
}

var (
	sectionHeadingPattern = restructure.MustCompile(&sectionHeading{}, restructure.Options{})
	audienceLinePattern   = restructure.MustCompile(&audienceLine{}, restructure.Options{})
	contentHeadingPattern = restructure.MustCompile(&contentHeading{}, restructure.Options{})
)

// isRule reports whether a line is a "---" horizontal rule
func isRule(line string) bool {
	s := strings.TrimSpace(line)
	return len(s) >= 3 && strings.Trim(s, "-") == ""
}

type section struct {
	title    string
	audience Audience
	body     []string
	inBody   bool
	hasBody  bool
}

// Parse splits a document into units. Parsing the same text always yields
// the same units with the same ids.
func Parse(text string) (*Document, error) {
	var d Document
	var cur *section

	flush := func() {
		if cur == nil || !cur.hasBody {
			return
		}
		body := trimBlankLines(cur.body)
		if body == "" {
			return
		}
		d.Units = append(d.Units, Unit{
			ID:       len(d.Units) + 1,
			Title:    cur.title,
			Body:     body,
			Audience: cur.audience,
		})
	}

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		var heading sectionHeading
		if sectionHeadingPattern.Find(&heading, line) {
			flush()
			cur = &section{title: strings.TrimSpace(heading.Title)}
			continue
		}

		if cur == nil {
			continue
		}

		switch {
		case cur.inBody:
			if isRule(line) {
				cur.inBody = false
				continue
			}
			cur.body = append(cur.body, line)

		case cur.hasBody:
			// text after the rule is commentary for the author, not the post

		default:
			var aud audienceLine
			if audienceLinePattern.Find(&aud, line) {
				a, err := ParseAudience(aud.Value)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDocument, i+1, err)
				}
				cur.audience = a
				continue
			}

			var ch contentHeading
			if contentHeadingPattern.Find(&ch, line) {
				cur.inBody = true
				cur.hasBody = true
			}
		}
	}
	flush()

	return &d, nil
}

// Load parses the document at path
func Load(path string) (*Document, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading content document: %w", err)
	}
	return Parse(string(buf))
}

// trimBlankLines joins lines after dropping leading and trailing blank ones
func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
