package supervise

import (
	"regexp"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// RegexMatcher builds a ReadyMatcher from a pattern. The first capture
// group is the extracted endpoint; a pattern without groups uses the whole
// match.
func RegexMatcher(pattern string) types.ReadyMatcher {
	re := regexp.MustCompile(pattern)
	return func(line string) (string, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
}
