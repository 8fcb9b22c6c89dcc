package prefilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanSkip_AllSignaturesKeyworded(t *testing.T) {
	pf := New(map[string][]string{
		"EICAR":  {"X5O!P%@AP"},
		"Marker": {"MARKER", "mark"},
	}, 2)

	assert.True(t, pf.CanSkip([]byte("clean payload")))
	assert.False(t, pf.CanSkip([]byte("contains X5O!P%@AP here")))
	assert.False(t, pf.CanSkip([]byte("a mark in the middle")))
}

func TestCanSkip_UngatedSignatureForcesScan(t *testing.T) {
	// One signature without keywords means no payload can be skipped.
	pf := New(map[string][]string{"EICAR": {"X5O!P%@AP"}}, 2)

	assert.False(t, pf.CanSkip([]byte("clean payload")))
}

func TestCanSkip_EmptyKeywordListGatesNothing(t *testing.T) {
	pf := New(map[string][]string{
		"EICAR": {"X5O!P%@AP"},
		"Bare":  {},
	}, 2)

	assert.False(t, pf.CanSkip([]byte("clean payload")))
}

func TestCanSkip_NoKeywordsAtAll(t *testing.T) {
	pf := New(nil, 3)
	assert.False(t, pf.CanSkip([]byte("anything")))
}
