package domain

import (
	"fmt"
	"strings"
)

// FormatTime renders a millisecond run time the way the game shows it,
// hh:mm:ss.mmm with the hour part omitted below one hour.
func FormatTime(ms int64) string {
	neg := ""
	if ms < 0 {
		neg = "-"
		ms = -ms
	}
	millis := ms % 1000
	secs := (ms / 1000) % 60
	mins := (ms / 60000) % 60
	hours := ms / 3600000
	if hours > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", neg, hours, mins, secs, millis)
	}
	return fmt.Sprintf("%s%02d:%02d.%03d", neg, mins, secs, millis)
}

// EscapeName strips ManiaPlanet style codes ($o, $i, $fff, $l[url]link, …)
// from a display name so it can be embedded in plain-text responses.
func EscapeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '$' {
			b.WriteRune(runes[i])
			continue
		}
		if i+1 >= len(runes) {
			break
		}
		i++
		switch c := runes[i]; {
		case c == '$':
			// $$ escapes a literal dollar
			b.WriteRune('$')
		case isHexDigit(c):
			// color code: up to three hex digits
			for n := 0; n < 2 && i+1 < len(runes) && isHexDigit(runes[i+1]); n++ {
				i++
			}
		case c == 'l' || c == 'L' || c == 'h' || c == 'H':
			// link code, optionally followed by a [target]
			if i+1 < len(runes) && runes[i+1] == '[' {
				i++
				for i+1 < len(runes) && runes[i] != ']' {
					i++
				}
			}
		default:
			// single-letter style codes are dropped
		}
	}
	return b.String()
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
