// Package redact removes credentials from strings before they are logged.
package redact

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces every detected secret.
const Placeholder = "REDACTED"

// secretPattern matches runs of token characters long enough to be a key.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the Shannon entropy above which a token counts as a
// secret. API keys sit well above 5.0; words and version strings stay below.
const entropyThreshold = 4.5

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

type span struct{ start, end int }

// String replaces secrets in s with Placeholder. A substring is a secret
// when it has high entropy or matches one of the gitleaks rules.
func String(s string) string {
	spans := entropySpans(s)
	spans = append(spans, ruleSpans(s)...)
	if len(spans) == 0 {
		return s
	}
	return replaceSpans(s, spans)
}

func entropySpans(s string) []span {
	var spans []span
	for _, loc := range secretPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	return spans
}

func ruleSpans(s string) []span {
	d := getDetector()
	if d == nil {
		return nil
	}
	var spans []span
	for _, f := range d.DetectString(s) {
		if f.Secret == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(s[from:], f.Secret)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span{start, start + len(f.Secret)})
			from = start + len(f.Secret)
		}
	}
	return spans
}

// replaceSpans merges overlapping spans and substitutes Placeholder for each.
func replaceSpans(s string, spans []span) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(s[prev:sp.start])
		b.WriteString(Placeholder)
		prev = sp.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// URL returns raw with its password and any secret-looking query values
// replaced. Unparseable input goes through String.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return String(raw)
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), Placeholder)
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for key, values := range q {
			for i, v := range values {
				if r := String(v); r != v {
					values[i] = r
					changed = true
				}
			}
			q[key] = values
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	return u.String()
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
