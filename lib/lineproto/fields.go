// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"strconv"
	"strings"
)

// SplitFields splits a reply line on '|' characters that are outside
// double-quoted strings. Quoted strings use strconv.Quote escaping.
// The fields are returned as written; use [Unquote] on text fields.
func SplitFields(line string) []string {
	var fields []string
	start := 0
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case '|':
			if !inQuote {
				fields = append(fields, line[start:i])
				start = i + 1
			}
		}
	}
	return append(fields, line[start:])
}

// Unquote returns the text of a quoted field, or the field unchanged
// when it is not a valid quoted string.
func Unquote(field string) string {
	if strings.HasPrefix(field, `"`) {
		if text, err := strconv.Unquote(field); err == nil {
			return text
		}
	}
	return field
}

// reply builds an OK line from its fields.
func reply(fields ...string) string {
	return "OK|" + strings.Join(fields, "|")
}

// item joins the sub-fields of one listing entry. The last value is
// free text and is quoted.
func item(values ...string) string {
	last := len(values) - 1
	values[last] = strconv.Quote(values[last])
	return strings.Join(values, ",")
}
