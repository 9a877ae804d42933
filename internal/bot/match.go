package bot

import "strings"

// Matches reports whether body triggers a rule. Exact modes compare the
// whole trimmed body. Substring modes look for the trigger's words as a
// contiguous run of the body's words, so "hello world" matches
// "well HELLO WORLD today" (ignoring case) but not "hello there world".
// An empty trigger matches everything.
func Matches(mode MatchMode, trigger, body string) bool {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return true
	}
	body = strings.TrimSpace(body)

	switch mode {
	case ExactCase:
		return body == trigger
	case ExactIgnoreCase:
		return strings.EqualFold(body, trigger)
	case SubstringCase:
		return containsRun(strings.Fields(body), strings.Fields(trigger), false)
	case SubstringIgnoreCase:
		return containsRun(strings.Fields(body), strings.Fields(trigger), true)
	}
	return false
}

func containsRun(haystack, needle []string, fold bool) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		ok := true
		for j, w := range needle {
			h := haystack[i+j]
			if fold && !strings.EqualFold(h, w) || !fold && h != w {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
