package domain

import (
	"encoding/base64"
	"strconv"
	"time"
	"unicode/utf8"
)

const cursorPrefix = "record:"

// EncodeCursor builds the opaque pagination cursor for a record date. The
// wire form is base64("record:" + unix_millis) and must stay stable for
// compatibility with existing clients.
func EncodeCursor(t time.Time) string {
	raw := cursorPrefix + strconv.FormatInt(t.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor back into its timestamp. Malformed input
// returns KindCursorDecode with the variant naming the first failing layer.
func DecodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, ErrCursorDecode(CursorNotBase64)
	}
	if !utf8.Valid(raw) {
		return time.Time{}, ErrCursorDecode(CursorNotUtf8)
	}
	s := string(raw)
	if len(s) < len(cursorPrefix) || s[:len(cursorPrefix)] != cursorPrefix {
		return time.Time{}, ErrCursorDecode(CursorWrongPrefix)
	}
	millis, err := strconv.ParseInt(s[len(cursorPrefix):], 10, 64)
	if err != nil {
		return time.Time{}, ErrCursorDecode(CursorNotTimestamp)
	}
	return time.UnixMilli(millis).UTC(), nil
}
