package shmemerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAndKindOf(t *testing.T) {
	base := errors.New("boom")
	err := New("create", NoMemory, base)

	if !Is(err, NoMemory) {
		t.Errorf("Is(err, NoMemory) = false, want true")
	}
	if Is(err, IO) {
		t.Errorf("Is(err, IO) = true, want false")
	}
	if KindOf(err) != NoMemory {
		t.Errorf("KindOf(err) = %v, want NoMemory", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Errorf("errors.Is(err, base) = false, want true (Unwrap must be wired)")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != Unknown {
		t.Errorf("KindOf(plain error) should be Unknown")
	}
}

func TestWrappedError(t *testing.T) {
	inner := New("unlink", NotFound, errors.New("enoent"))
	outer := fmt.Errorf("cleanup failed: %w", inner)

	if !Is(outer, NotFound) {
		t.Errorf("Is(outer, NotFound) = false, want true through fmt.Errorf wrapping")
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		InvalidArg:    "INVALID_ARG",
		NotFound:      "NOT_FOUND",
		AlreadyExists: "ALREADY_EXISTS",
		NoMemory:      "NO_MEMORY",
		WrongNode:     "WRONG_NODE",
		CorruptMount:  "CORRUPT_MOUNT",
		IO:            "IO",
		Unknown:       "UNKNOWN",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(k), got, want)
		}
	}
}
