package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "-", FormatAge(0))
	assert.Equal(t, "-", FormatAge(-time.Minute))
	assert.Equal(t, "<1s", FormatAge(300*time.Millisecond))
	assert.Equal(t, "1m30s", FormatAge(90*time.Second+400*time.Millisecond))
}
