package test

import (
	"errors"
	"strings"
	"testing"
)

func Equal[T comparable](t *testing.T, expected, actual T) bool {
	t.Helper()

	if expected != actual {
		t.Errorf(""+
			"Not equal: \n"+
			"Expected: %v\n"+
			"Actual: %v", expected, actual)
		return false
	}

	return true
}

func True(t *testing.T, value bool) bool {
	t.Helper()

	if !value {
		t.Error("Expected true, got false")
		return false
	}

	return true
}

func False(t *testing.T, value bool) bool {
	t.Helper()

	if value {
		t.Error("Expected false, got true")
		return false
	}

	return true
}

func NoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ErrorIs(t *testing.T, err, target error) bool {
	t.Helper()

	if !errors.Is(err, target) {
		t.Errorf(""+
			"Error mismatch: \n"+
			"Expected: %v\n"+
			"Actual: %v", target, err)
		return false
	}

	return true
}

func Contains(t *testing.T, s, substr string) bool {
	t.Helper()

	if !strings.Contains(s, substr) {
		t.Errorf("Expected %q to contain %q", s, substr)
		return false
	}

	return true
}
