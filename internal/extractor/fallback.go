package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"signalflow/models"
)

var (
	expirationRe = regexp.MustCompile(`(\d+)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?)\b`)
	timeframeRe  = regexp.MustCompile(`^(\d+)(s|min|h)$`)
)

// Preprocess collapses whitespace and strips characters outside the
// allow-list. It returns the cleaned original (for the model and audit)
// and a lower-cased working copy for matching.
func Preprocess(text string) (original, working string) {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case strings.ContainsRune(" .,:;!?%/-+()'\"$€£¥_@#&*=", r):
			sb.WriteRune(r)
		case r == '\n' || r == '\t' || r == '\r':
			sb.WriteRune(' ')
		}
	}
	original = strings.Join(strings.Fields(sb.String()), " ")
	return original, strings.ToLower(original)
}

// extractFallback is the deterministic keyword-and-regex path used when the
// model is unavailable or returns garbage. Confidence is fixed at 50.
func (e *Extractor) extractFallback(working string) models.SignalFields {
	fields := models.SignalFields{Reasoning: FallbackReasoning}

	words := tokenize(working)
	for _, kw := range e.keywords {
		if words[strings.ToLower(kw)] {
			fields.IsSignal = true
			break
		}
	}
	if !fields.IsSignal {
		return fields
	}

	switch {
	case words["call"] || words["buy"] || words["up"]:
		fields.Action = models.ActionCall
	case words["put"] || words["sell"] || words["down"]:
		fields.Action = models.ActionPut
	}

	for _, asset := range e.assets {
		a := strings.ToLower(asset)
		if strings.Contains(working, a) || strings.Contains(working, strings.ReplaceAll(a, "/", "")) {
			fields.Asset = asset
			break
		}
	}

	// Longest match wins so "15min" is not shadowed by "5min"
	for _, tf := range e.timeframes {
		if strings.Contains(working, strings.ToLower(tf)) && len(tf) > len(fields.Timeframe) {
			fields.Timeframe = tf
		}
	}

	if m := expirationRe.FindStringSubmatch(working); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch m[2][0] {
			case 's':
				fields.ExpirationSeconds = n
			case 'm':
				fields.ExpirationSeconds = n * 60
			case 'h':
				fields.ExpirationSeconds = n * 3600
			}
		}
	}

	// A spelled-out duration like "5 minutes" still names a supported
	// timeframe once converted to seconds.
	if fields.Timeframe == "" && fields.ExpirationSeconds > 0 {
		if tf, ok := e.tfSeconds[fields.ExpirationSeconds]; ok {
			fields.Timeframe = tf
		}
	}

	for _, broker := range e.brokers {
		if strings.Contains(working, strings.ToLower(broker)) {
			fields.Broker = broker
			break
		}
	}

	fields.Confidence = 50
	return fields
}

func tokenize(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}
	return words
}

// DurationSeconds converts a timeframe label like "5min" or "30s" to
// seconds, returning 0 for labels it cannot parse.
func DurationSeconds(timeframe string) int {
	m := timeframeRe.FindStringSubmatch(strings.ToLower(timeframe))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	switch m[2] {
	case "s":
		return n
	case "min":
		return n * 60
	case "h":
		return n * 3600
	}
	return 0
}

// timeframeSeconds maps each supported timeframe label to its duration in
// seconds, so a parsed expiration can be matched back to a label.
func timeframeSeconds(timeframes []string) map[int]string {
	out := make(map[int]string, len(timeframes))
	for _, tf := range timeframes {
		m := timeframeRe.FindStringSubmatch(strings.ToLower(tf))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "s":
			out[n] = tf
		case "min":
			out[n*60] = tf
		case "h":
			out[n*3600] = tf
		}
	}
	return out
}
