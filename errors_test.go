package main

import "testing"

func TestConversionMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrExtraction, MsgExtractionError},
		{ErrOutputMissing, MsgOutputMissing},
		{ErrConversionFailed, MsgConversionError},
		{errBoom, MsgConversionError},
	}
	for _, tt := range tests {
		if got := conversionMessage(tt.err); got != tt.want {
			t.Errorf("conversionMessage(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}
