package oops

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

var SampleErrorValue = errors.New("some error occurred that you should handle")

type SampleErrorType struct {
	Message string
}

func (s SampleErrorType) Error() string {
	return s.Message
}

func init() {
	zerolog.ErrorStackMarshaler = ZerologStackMarshaler
}

func TestNew(t *testing.T) {
	t.Run("errors.Is", func(t *testing.T) {
		err := New(SampleErrorValue, "test error")
		if !errors.Is(err, SampleErrorValue) {
			t.Fatal("error did not appear to wrap the sample value")
		}
	})
	t.Run("errors.As", func(t *testing.T) {
		err := New(SampleErrorType{Message: "some fancy error type has occurred"}, "test error")
		var sErr SampleErrorType
		if !errors.As(err, &sErr) {
			t.Fatal("error did not appear to wrap the sample error type")
		}
	})
	t.Run("message", func(t *testing.T) {
		assert.Equal(t, "reading 3 chunks: "+SampleErrorValue.Error(), New(SampleErrorValue, "reading %d chunks", 3).Error())
		assert.Equal(t, "no cause", New(nil, "no cause").Error())
	})
}

func TestStack(t *testing.T) {
	err := New(SampleErrorValue, "test error")
	stack, ok := ZerologStackMarshaler(err).(CallStack)
	if assert.True(t, ok) && assert.NotEmpty(t, stack) {
		assert.Contains(t, stack[0].Function, "TestStack")
	}
	assert.Nil(t, ZerologStackMarshaler(SampleErrorValue))
}
