package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"scrape error passes through", NotFound("gone"), ErrCodeNotFound},
		{"wrapped scrape error unwraps", fmt.Errorf("outer: %w", Busy("full")), ErrCodeBusy},
		{"context canceled", context.Canceled, ErrCodeCancelled},
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeCancelled},
		{"wrapped deadline", fmt.Errorf("nav: %w", context.DeadlineExceeded), ErrCodeCancelled},
		{"plain error", errors.New("boom"), ErrCodeUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Classify(tt.err).Code)
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(Invalid("bad")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}

func TestScrapeError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("tcp reset")
	e := Upstream("fetch failed", inner)

	assert.Contains(t, e.Error(), ErrCodeUpstream)
	assert.Contains(t, e.Error(), "fetch failed")
	assert.ErrorIs(t, e, inner)

	detail := e.ToDetail()
	assert.Equal(t, ErrCodeUpstream, detail.Code)
	assert.Equal(t, "fetch failed", detail.Message)
}
