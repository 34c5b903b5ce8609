// Package chunker splits long legal documents into sections for graph ingestion.
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultTargetSize = 2000
	DefaultMaxSize    = 4000
)

// Options configures section sizes in bytes.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default sectioning options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Section is one piece of a document with its position in the original text.
type Section struct {
	Heading   string
	Text      string
	StartLine int
	EndLine   int
}

// Split returns the document's sections in order. A document no longer than
// MaxSize is a single section. Sections never span a heading.
func Split(text string, opts Options) []Section {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.TargetSize > opts.MaxSize {
		opts.TargetSize = opts.MaxSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []Section{{Text: text, StartLine: 1, EndLine: strings.Count(text, "\n") + 1}}
	}
	return merge(paragraphs(text), opts)
}

// paragraph is a blank-line separated block and the heading it falls under.
type paragraph struct {
	heading     string
	text        string
	start, end  int
	headingOnly bool
}

func paragraphs(text string) []paragraph {
	lines := strings.Split(text, "\n")
	var out []paragraph
	var cur []string
	heading := ""
	start := 1
	onlyHeading := false

	flush := func(end int) {
		if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
			out = append(out, paragraph{heading: heading, text: t, start: start, end: end, headingOnly: onlyHeading})
		}
		cur = nil
	}

	for i, line := range lines {
		n := i + 1
		h, isHeading := headingOf(line)
		switch {
		case isHeading:
			flush(n - 1)
			heading = h
		case strings.TrimSpace(line) == "":
			flush(n - 1)
			continue
		}
		if len(cur) == 0 {
			start = n
		}
		onlyHeading = isHeading
		cur = append(cur, line)
	}
	flush(len(lines))
	return out
}

// headingOf recognizes markdown headings, section symbols and short
// all-caps captions such as "COUNT I" or "STATEMENT OF FACTS".
func headingOf(line string) (string, bool) {
	t := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(t, "#"):
		return strings.TrimSpace(strings.TrimLeft(t, "#")), true
	case strings.HasPrefix(t, "§"):
		return t, true
	case isCaption(t):
		return t, true
	}
	return "", false
}

func isCaption(t string) bool {
	if len(t) < 4 || len(t) > 80 {
		return false
	}
	letters := 0
	for _, r := range t {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

// merge joins paragraphs under the same heading up to TargetSize and splits
// anything over MaxSize. A lone heading always joins the paragraph after it.
func merge(paras []paragraph, opts Options) []Section {
	var out []Section
	var acc *Section
	accHeadingOnly := false

	flush := func() {
		if acc == nil {
			return
		}
		if len(acc.Text) > opts.MaxSize {
			out = append(out, split(*acc, opts)...)
		} else {
			out = append(out, *acc)
		}
		acc = nil
	}

	for _, p := range paras {
		if acc != nil && acc.Heading == p.heading && (accHeadingOnly || len(acc.Text)+2+len(p.text) <= opts.TargetSize) {
			acc.Text += "\n\n" + p.text
			acc.EndLine = p.end
			accHeadingOnly = false
			continue
		}
		flush()
		acc = &Section{Heading: p.heading, Text: p.text, StartLine: p.start, EndLine: p.end}
		accHeadingOnly = p.headingOnly
	}
	flush()
	return out
}

// split breaks an oversized section on line boundaries, and long lines on
// word boundaries, into pieces of about TargetSize.
func split(s Section, opts Options) []Section {
	var out []Section
	var b strings.Builder
	start, last := s.StartLine, s.StartLine
	prevLine := -1

	emit := func() {
		if t := strings.TrimSpace(b.String()); t != "" {
			out = append(out, Section{Heading: s.Heading, Text: t, StartLine: start, EndLine: last})
		}
		b.Reset()
	}

	for i, line := range strings.Split(s.Text, "\n") {
		n := s.StartLine + i
		for _, piece := range wrap(line, opts.TargetSize) {
			if b.Len() > 0 && b.Len()+1+len(piece) > opts.TargetSize {
				emit()
			}
			if b.Len() == 0 {
				start = n
			} else if prevLine == n {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
			b.WriteString(piece)
			prevLine, last = n, n
		}
	}
	emit()
	return out
}

// wrap cuts a line into word-aligned pieces of at most size bytes. A single
// word longer than size is kept whole.
func wrap(line string, size int) []string {
	if len(line) <= size {
		return []string{line}
	}
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(line) {
		if cur.Len() > 0 && cur.Len()+1+len(w) > size {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
