package provider

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ParseKind tells how a result payload was interpreted.
type ParseKind int

const (
	// ParseEmpty means nothing recognisable was found. Callers treat it as failure.
	ParseEmpty ParseKind = iota
	// ParseOK means the payload decoded as one of the known JSON shapes.
	ParseOK
	// ParseRecovered means URLs were scraped from text that did not decode cleanly.
	ParseRecovered
)

func (k ParseKind) String() string {
	switch k {
	case ParseOK:
		return "ok"
	case ParseRecovered:
		return "recovered"
	default:
		return "empty"
	}
}

// ParsedResult is the outcome of ParseResult.
type ParsedResult struct {
	Kind ParseKind
	URLs []string
	// Duration is the provider supplied media duration in seconds, 0 when absent.
	Duration float64
}

// URL tokens stop at whitespace, quotes and JSON delimiters; a token is a media URL
// only when its parsed path ends in one of mediaExtensions.
var genericURLPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>\\\[\],]+`)

var mediaExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".gif": {},
	".mp4": {}, ".mov": {}, ".webm": {},
	".mp3": {}, ".wav": {}, ".m4a": {},
}

// ParseResult turns a provider result payload into an ordered list of asset URLs.
//
// Accepted JSON shapes are {outputs: [...]}, {resultUrls: [...]}, a bare array of
// strings and a bare string. Anything that does not decode is scanned for media URLs.
// ParseResult never panics; an unusable payload yields ParseEmpty.
func ParseResult(raw string) ParsedResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedResult{Kind: ParseEmpty}
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		result := parseDecoded(decoded, 0)
		if len(result.URLs) > 0 {
			result.Kind = ParseOK
			return result
		}
		if urls := scanURLs(trimmed); len(urls) > 0 {
			return ParsedResult{Kind: ParseRecovered, URLs: urls, Duration: result.Duration}
		}
		return ParsedResult{Kind: ParseEmpty, Duration: result.Duration}
	}

	if urls := scanURLs(trimmed); len(urls) > 0 {
		return ParsedResult{Kind: ParseRecovered, URLs: urls}
	}
	return ParsedResult{Kind: ParseEmpty}
}

// ResultURLs is ParseResult without the classification.
func ResultURLs(raw string) []string {
	return ParseResult(raw).URLs
}

func parseDecoded(value interface{}, depth int) ParsedResult {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ParsedResult{}
		}
		// resultJson is sometimes encoded twice
		if depth == 0 && (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) {
			var inner interface{}
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				return parseDecoded(inner, depth+1)
			}
		}
		return ParsedResult{URLs: []string{s}}
	case []interface{}:
		return ParsedResult{URLs: stringsOf(v)}
	case map[string]interface{}:
		result := ParsedResult{Duration: durationOf(v)}
		for _, key := range []string{"outputs", "resultUrls"} {
			switch list := v[key].(type) {
			case []interface{}:
				if urls := stringsOf(list); len(urls) > 0 {
					result.URLs = urls
					return result
				}
			case string:
				if s := strings.TrimSpace(list); s != "" {
					result.URLs = []string{s}
					return result
				}
			}
		}
		return result
	default:
		return ParsedResult{}
	}
}

func stringsOf(list []interface{}) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func durationOf(m map[string]interface{}) float64 {
	for _, key := range []string{"duration", "durationSec", "audioDuration"} {
		switch d := m[key].(type) {
		case float64:
			if d > 0 {
				return d
			}
		case json.Number:
			if f, err := d.Float64(); err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}

// scanURLs extracts media URLs from text that may be truncated or JSON-escaped.
// When no token looks like media, the first URL of any kind is returned.
func scanURLs(text string) []string {
	tokens := genericURLPattern.FindAllString(unescapeJSONText(text), -1)
	if len(tokens) == 0 {
		return nil
	}

	media := make([]string, 0, len(tokens))
	for i, token := range tokens {
		token = strings.TrimRight(token, ".;:)}")
		tokens[i] = token
		if isMediaURL(token) {
			media = append(media, token)
		}
	}
	if len(media) > 0 {
		return dedupe(media)
	}
	return []string{tokens[0]}
}

func isMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	_, ok := mediaExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func unescapeJSONText(text string) string {
	replacer := strings.NewReplacer(`\\/`, `/`, `\/`, `/`, `\\"`, `"`, `\"`, `"`, `\u0026`, `&`)
	return replacer.Replace(text)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
