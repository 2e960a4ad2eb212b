package provider

import (
	"regexp"
	"strconv"
	"strings"
)

// Upstream bodies truncate under load. These patterns pull what they can out of
// the partial text; none of them needs the closing part of the document.
var (
	statePattern       = regexp.MustCompile(`"state"\s*:\s*"([A-Za-z_]+)"`)
	statusPattern      = regexp.MustCompile(`"status"\s*:\s*"([A-Za-z_]+)"`)
	failMsgPattern     = regexp.MustCompile(`"failMsg"\s*:\s*"((?:[^"\\]|\\.)*)`)
	failCodePattern    = regexp.MustCompile(`"failCode"\s*:\s*"?([A-Za-z0-9_.\-]+)`)
	videoErrorPattern  = regexp.MustCompile(`"error"\s*:\s*(?:\{[^}]*?"message"\s*:\s*)?"((?:[^"\\]|\\.)*)`)
	durationKeyPattern = regexp.MustCompile(`\\?"(?:duration|durationSec|audioDuration)\\?"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
)

// keys that follow resultJson in a recordInfo body; anything after them is not result data
var recordStopKeys = []string{`"failCode"`, `"failMsg"`, `"costTime"`, `"completeTime"`, `"createTime"`, `"updateTime"`, `"param"`}

var videoStopKeys = []string{`"error"`, `"status"`, `"param"`, `"input"`}

// recoverRecord scrapes a truncated recordInfo body. It returns nil when not even
// the state survived.
func recoverRecord(body string) *TaskStatus {
	m := statePattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	status := &TaskStatus{
		RawState:  m[1],
		State:     MapState(m[1]),
		Recovered: true,
	}
	if section := sectionAfter(body, `"resultJson"`, recordStopKeys); section != "" {
		status.ResultPayload = section
		status.URLs = scanURLs(section)
		status.Duration = scrapeDuration(section)
	}
	if fm := failMsgPattern.FindStringSubmatch(body); fm != nil {
		status.FailMsg = strings.TrimSpace(unescapeJSONText(fm[1]))
	}
	if fc := failCodePattern.FindStringSubmatch(body); fc != nil {
		status.FailCode = fc[1]
	}
	return status
}

// recoverVideo is recoverRecord for the video status shape.
func recoverVideo(body string) *TaskStatus {
	m := statusPattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	status := &TaskStatus{
		RawState:  m[1],
		State:     MapState(m[1]),
		Recovered: true,
	}
	if section := sectionAfter(body, `"outputs"`, videoStopKeys); section != "" {
		status.ResultPayload = section
		status.URLs = scanURLs(section)
	}
	if em := videoErrorPattern.FindStringSubmatch(body); em != nil {
		status.FailMsg = strings.TrimSpace(unescapeJSONText(em[1]))
	}
	return status
}

// sectionAfter returns the text following key up to the first stop key.
// Reading only this window keeps input URLs echoed in "param" out of the results.
func sectionAfter(body, key string, stops []string) string {
	idx := strings.Index(body, key)
	if idx < 0 {
		return ""
	}
	rest := body[idx+len(key):]
	end := len(rest)
	for _, stop := range stops {
		if i := strings.Index(rest, stop); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(rest[:end])
}

func scrapeDuration(text string) float64 {
	m := durationKeyPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return value
}
