package iconmaker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := Wrap(KindFetch, "fetch", "request", errors.New("connection refused"))
	assert.Equal(t, "[fetch:fetch] request: connection refused", err.Error())

	plain := New(KindValue, "convert", "nothing to convert")
	assert.Equal(t, "[value:convert] nothing to convert", plain.Error())

	plain.Notices = []Notice{{Ref: "a.png", Stage: StateResolving, Err: errors.New("x")}}
	assert.Equal(t, "[value:convert] nothing to convert (1 notices)", plain.Error())
}

func TestWrapKeepsExistingError(t *testing.T) {
	t.Parallel()

	inner := New(KindImage, "inspect", "decode image")
	outer := Wrap(KindConversion, "convert", "conversion failed", fmt.Errorf("stage: %w", inner))
	assert.Same(t, inner, outer)
	assert.True(t, IsKind(outer, KindImage))

	assert.Nil(t, Wrap(KindFetch, "fetch", "nothing", nil))
}

func TestKinds(t *testing.T) {
	t.Parallel()

	err := Wrap(KindValue, "convert", "nothing to convert", ErrEmptyImageList)
	assert.ErrorIs(t, err, ErrEmptyImageList)
	assert.True(t, IsKind(err, KindValue))
	assert.False(t, IsKind(err, KindFetch))
	assert.Equal(t, KindValue, KindOf(fmt.Errorf("outer: %w", err)))

	assert.False(t, IsKind(errors.New("plain"), KindValue))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestNoticeString(t *testing.T) {
	t.Parallel()

	n := Notice{Ref: "http://example.com/a.png", Stage: StateResolving, Err: errors.New("404")}
	assert.Equal(t, "RESOLVING: http://example.com/a.png: 404", n.String())
	assert.Equal(t, "State(99)", State(99).String())
}
