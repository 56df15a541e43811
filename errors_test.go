package corelink

import (
	"errors"
	"testing"
)

func TestErrorKindStringAndError(t *testing.T) {
	cases := []struct {
		k    ErrorKind
		want string
	}{
		{ErrMalformed, "malformed"},
		{ErrUnsupported, "unsupported"},
		{ErrIgnored, "ignored"},
		{ErrTimeout, "timeout"},
		{ErrResourceExhaust, "resource exhausted"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("String(%d) = %q, want %q", c.k, got, c.want)
		}
		if got := c.k.Error(); got != c.want {
			t.Errorf("Error(%d) = %q, want %q", c.k, got, c.want)
		}
	}
}

func TestValidatorAccumulatesFirstErrorByDefault(t *testing.T) {
	var v Validator
	v.AddError(ErrMalformed)
	v.AddError(ErrUnsupported)
	if !v.HasError() {
		t.Fatal("want HasError true")
	}
	if !errors.Is(v.Err(), ErrMalformed) {
		t.Fatalf("want first error retained, got %v", v.Err())
	}
	if errors.Is(v.Err(), ErrUnsupported) {
		t.Fatal("want second error discarded by default")
	}
}

func TestValidatorAllowMultipleErrors(t *testing.T) {
	var v Validator
	v.AllowMultipleErrors(true)
	v.AddError(ErrMalformed)
	v.AddError(ErrUnsupported)
	err := v.Err()
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrUnsupported) {
		t.Fatalf("want both errors joined, got %v", err)
	}
}

func TestValidatorErrPopResets(t *testing.T) {
	var v Validator
	v.AddError(ErrTimeout)
	err := v.ErrPop()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrPop to return the accumulated error, got %v", err)
	}
	if v.HasError() {
		t.Fatal("want ErrPop to reset the validator")
	}
}

func TestBitPosErr(t *testing.T) {
	var v Validator
	v.AllowMultipleErrors(true)
	v.AddBitPosErr(0, 4, ErrMalformed)
	if !v.HasError() {
		t.Fatal("want HasError true after AddBitPosErr")
	}
	want := "malformed at bits 0..4"
	if got := v.Err().Error(); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}
