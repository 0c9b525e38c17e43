package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("frame skipped")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op that must not panic and must not call anything.
	called = false
	SetLogger(nil)
	Logf("frame skipped")
	if called {
		t.Error("no-op logger still reached the previous callback")
	}
}
