// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package config

import "testing"

func TestParseYAML(t *testing.T) {
	d, err := Parse("plugin.yaml", []byte("id: demo\nplatform: 2024.1\nclassName: Demo\n"))
	if err != nil {
		t.Fatal(err)
	}
	id, err := ID(d)
	if err != nil {
		t.Fatal(err)
	}
	if id != "demo" {
		t.Errorf("id = %q, want demo", id)
	}
}

func TestParseUnrecognizedExtension(t *testing.T) {
	if _, err := Parse("plugin.txt", []byte("id=demo")); err == nil {
		t.Fatal("expected error for unrecognized extension")
	}
}

func TestParseNotAnObject(t *testing.T) {
	if _, err := Parse("plugin.json", []byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for non-object document")
	}
}

func TestIDMissing(t *testing.T) {
	d, err := Parse("plugin.json", []byte(`{"name":"demo"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ID(d); err == nil {
		t.Fatal("expected ValidationError for missing id")
	}
}

func TestIDBlank(t *testing.T) {
	d, err := Parse("plugin.json", []byte(`{"id":""}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ID(d); err == nil {
		t.Fatal("expected ValidationError for blank id")
	}
}

func TestIsLegacy(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		host    string
		wantLeg bool
	}{
		{"absent", `{"id":"demo"}`, "2024.1", true},
		{"blank", `{"id":"demo","platform":""}`, "2024.1", true},
		{"mismatch", `{"id":"demo","platform":"2023.1"}`, "2024.1", true},
		{"match", `{"id":"demo","platform":"2024.1"}`, "2024.1", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := Parse("plugin.json", []byte(c.doc))
			if err != nil {
				t.Fatal(err)
			}
			if got := IsLegacy(d, c.host); got != c.wantLeg {
				t.Errorf("IsLegacy() = %v, want %v", got, c.wantLeg)
			}
		})
	}
}
