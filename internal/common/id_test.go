package common

import (
	"strings"
	"testing"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if !strings.HasPrefix(a, "run_") {
		t.Errorf("NewRunID() = %q, want run_ prefix", a)
	}
	if a == b {
		t.Error("consecutive run ids should differ")
	}
}

func TestNewEmailID(t *testing.T) {
	id := NewEmailID()
	if !strings.HasPrefix(id, "msg_") {
		t.Errorf("NewEmailID() = %q, want msg_ prefix", id)
	}
}
