package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsContextOverflow(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrContextOverflow, true},
		{fmt.Errorf("completion: %w", ErrContextOverflow), true},
		{errors.New("llama_decode: context is full"), true},
		{errors.New("prompt would exceed the context window"), true},
		{errors.New("model not loaded"), false},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := IsContextOverflow(tc.err); got != tc.want {
			t.Errorf("IsContextOverflow(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
