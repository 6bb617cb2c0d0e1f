package grading

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single pattern evaluation.
const MatchTimeout = 250 * time.Millisecond

// Compile builds an ECMAScript pattern. Both a bare body and the literal
// notation "/body/flags" are accepted; flags i, m and s are honoured, g, u and y
// are ignored and any other letter is an error.
func Compile(pattern string) (*regexp2.Regexp, error) {
	body, flags := splitLiteral(pattern)

	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("pattern %q: unsupported flag %q", pattern, f)
		}
	}
	// regexp2 rejects Singleline in ECMAScript mode.
	if opts&regexp2.Singleline != 0 {
		opts &^= regexp2.ECMAScript
	}

	re, err := regexp2.Compile(body, opts)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

func splitLiteral(pattern string) (string, string) {
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern, ""
	}
	end := strings.LastIndex(pattern, "/")
	if end == 0 {
		return pattern, ""
	}
	flags := pattern[end+1:]
	for _, r := range flags {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return pattern, ""
		}
	}
	return pattern[1:end], flags
}
