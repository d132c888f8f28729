package cassandra

import (
	"regexp"
	"strings"
)

// compiledGlob is a glob pattern compiled once per query. `?` matches
// exactly one code point, `*` matches any run (including empty) of code
// points, everything else is literal.
type compiledGlob struct {
	pattern string
	re      *regexp.Regexp
}

func compileGlob(pattern string) compiledGlob {
	var b strings.Builder
	b.WriteByte('^')
	literal := strings.Builder{}
	flush := func() {
		if literal.Len() > 0 {
			b.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}
	for _, r := range pattern {
		switch r {
		case '*':
			flush()
			b.WriteString(".*")
		case '?':
			flush()
			b.WriteString(".")
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	b.WriteByte('$')
	return compiledGlob{pattern: pattern, re: regexp.MustCompile(b.String())}
}

func (g compiledGlob) matches(value string) bool {
	return g.re.MatchString(value)
}

// hasWildcard reports whether a raw glob pattern contains `*` or `?`,
// used by the planner to decide whether a tag's filter values are
// eligible for the split index: a candidate is eligible only if every
// one of its filter values is wildcard-free.
func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// compileGlobs compiles every pattern in patterns.
func compileGlobs(patterns []string) []compiledGlob {
	compiled := make([]compiledGlob, len(patterns))
	for i, p := range patterns {
		compiled[i] = compileGlob(p)
	}
	return compiled
}

// matchesAny reports whether value matches at least one compiled glob.
// An empty glob set never matches; callers must not invoke matchesAny
// with nil globs for a required filter tag — a missing tag is rejected,
// not treated as an automatic match.
func matchesAny(globs []compiledGlob, value string) bool {
	for _, g := range globs {
		if g.matches(value) {
			return true
		}
	}
	return false
}
