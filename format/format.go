// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package format implements the structured-document codecs named by
// spec §6: config and data leaves are serialized as JSON, YAML,
// Java-style ".properties", or XML, selected by file extension.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sbabiv/xml2map"
	"gopkg.in/yaml.v3"

	"github.com/rapidcontext/substrate/value"
)

// Ext normalizes a file extension (with or without the leading dot) to
// the canonical lowercase form used by Decode/Encode/IsStructured.
func Ext(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsStructured reports whether ext names one of the structured document
// formats this package understands; any other extension is treated as
// an opaque binary leaf by the stores that embed this package.
func IsStructured(ext string) bool {
	switch Ext(ext) {
	case "json", "yaml", "yml", "properties", "xml":
		return true
	default:
		return false
	}
}

// Decode parses data according to the format named by ext into a Value.
func Decode(ext string, data []byte) (value.Value, error) {
	switch Ext(ext) {
	case "json":
		return decodeJSON(data)
	case "yaml", "yml":
		return decodeYAML(data)
	case "properties":
		return decodeProperties(data)
	case "xml":
		return decodeXML(data)
	default:
		return value.Null(), fmt.Errorf("format: unsupported extension %q", ext)
	}
}

// Encode serializes v according to the format named by ext.
func Encode(ext string, v value.Value) ([]byte, error) {
	switch Ext(ext) {
	case "json":
		return encodeJSON(v)
	case "yaml", "yml":
		return encodeYAML(v)
	case "properties":
		return encodeProperties(v)
	case "xml":
		return nil, fmt.Errorf("format: writing .xml documents is not supported")
	default:
		return nil, fmt.Errorf("format: unsupported extension %q", ext)
	}
}

func decodeJSON(data []byte) (value.Value, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return value.Null(), err
	}
	return value.FromGeneric(generic), nil
}

func encodeJSON(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value.ToGeneric(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeYAML(data []byte) (value.Value, error) {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return value.Null(), err
	}
	return value.FromGeneric(generic), nil
}

func encodeYAML(v value.Value) ([]byte, error) {
	return yaml.Marshal(value.ToGeneric(v))
}

func decodeXML(data []byte) (value.Value, error) {
	decoder := xml2map.NewDecoder(bytes.NewReader(data))
	generic, err := decoder.Decode()
	if err != nil {
		return value.Null(), err
	}
	return value.FromGeneric(generic), nil
}
