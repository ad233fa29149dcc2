package ingest

import "regexp"

var patternMentionRe = regexp.MustCompile(`(?i)(?:using|retrieved|applied)\s+(?:pattern|L0|L1):?\s*([A-Za-z0-9_-]+)`)

// ExtractPatterns scrapes pattern mentions such as "applied pattern:
// cache-lookup" from free-form transcript text.
//
// This is a best-effort, lossy heuristic. Its output only feeds the pattern
// registry and never touches token or cost totals.
func ExtractPatterns(text string) []string {
	matches := patternMentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
