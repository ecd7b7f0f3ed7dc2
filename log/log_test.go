// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	if err := l.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	l.WithField("mount", "memory").Info("mounted")
	if !strings.Contains(buf.String(), "mounted") {
		t.Errorf("expected log output to contain message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "mount=memory") {
		t.Errorf("expected log output to contain field, got %q", buf.String())
	}
}
