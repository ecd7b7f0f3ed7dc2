// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package format

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/rapidcontext/substrate/value"
)

// decodeProperties parses a Java-style ".properties" document: "#" or
// "!" prefixed comment lines, "key=value"/"key:value"/"key value"
// entries, and backslash line continuation. The result is a flat Dict
// of string values — Java Properties has no nesting.
func decodeProperties(data []byte) (value.Value, error) {
	d := value.NewDict()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending string
	var continuing bool

	for scanner.Scan() {
		line := scanner.Text()

		if continuing {
			pending += strings.TrimLeft(line, " \t")
		} else {
			pending = strings.TrimLeft(line, " \t")
		}

		continuing = strings.HasSuffix(pending, "\\") && !strings.HasSuffix(pending, "\\\\")
		if continuing {
			pending = pending[:len(pending)-1]
			continue
		}

		entry := pending
		pending = ""
		if entry == "" || strings.HasPrefix(entry, "#") || strings.HasPrefix(entry, "!") {
			continue
		}

		key, val := splitPropertyEntry(entry)
		d.Set(key, value.Str(val))
	}
	if err := scanner.Err(); err != nil {
		return value.Null(), err
	}
	return value.FromDict(d), nil
}

func splitPropertyEntry(entry string) (string, string) {
	sepIdx := -1
	for i, r := range entry {
		if r == '=' || r == ':' {
			sepIdx = i
			break
		}
		if r == ' ' || r == '\t' {
			sepIdx = i
			break
		}
	}
	if sepIdx < 0 {
		return entry, ""
	}
	key := entry[:sepIdx]
	rest := strings.TrimLeft(entry[sepIdx+1:], " \t")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t")
	}
	return key, rest
}

// encodeProperties serializes a flat Dict of string values. Non-Dict
// values, or Dict entries that are not themselves strings, are rejected
// — the .properties format has no representation for nested structure.
func encodeProperties(v value.Value) ([]byte, error) {
	d, ok := v.Dict()
	if !ok {
		return nil, fmt.Errorf("format: .properties can only encode a flat Dict of strings")
	}
	var buf bytes.Buffer
	var err error
	d.Range(func(key string, val value.Value) bool {
		s, isStr := val.Str()
		if !isStr {
			err = fmt.Errorf("format: .properties entry %q is not a string", key)
			return false
		}
		fmt.Fprintf(&buf, "%s=%s\n", key, escapeProperty(s))
		return true
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func escapeProperty(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
