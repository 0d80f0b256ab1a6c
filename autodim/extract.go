package autodim

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON returns the JSON value embedded in free text: the whole text if
// it parses, otherwise the outermost object or array span, whichever opens
// first. It returns an empty object when nothing parses.
func ExtractJSON(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return map[string]any{}
	}
	if v, ok := parse(text); ok {
		return v
	}
	spans := [][2]byte{{'{', '}'}, {'[', ']'}}
	obj, arr := strings.IndexByte(text, '{'), strings.IndexByte(text, '[')
	if arr >= 0 && (obj < 0 || arr < obj) {
		spans[0], spans[1] = spans[1], spans[0]
	}
	for _, delim := range spans {
		start := strings.IndexByte(text, delim[0])
		end := strings.LastIndexByte(text, delim[1])
		if start < 0 || end <= start {
			continue
		}
		if v, ok := parse(text[start : end+1]); ok {
			return v
		}
	}
	return map[string]any{}
}

func parse(s string) (any, bool) {
	if !gjson.Valid(s) {
		return nil, false
	}
	res := gjson.Parse(s)
	if !res.IsObject() && !res.IsArray() {
		return nil, false
	}
	return res.Value(), true
}
