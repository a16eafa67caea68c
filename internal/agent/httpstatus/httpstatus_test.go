package httpstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhraseKnown(t *testing.T) {
	p, ok := Phrase(404)
	assert.True(t, ok)
	assert.Equal(t, "Not Found", p)
}

func TestPhraseUnknown(t *testing.T) {
	_, ok := Phrase(799)
	assert.False(t, ok)
}
