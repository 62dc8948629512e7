package stdx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMust0(t *testing.T) {
	assert.NotPanics(t, func() {
		Must0(nil)
	})
	assert.PanicsWithError(t, "boom", func() {
		Must0(errors.New("boom"))
	})
}

func TestMust1(t *testing.T) {
	v := Must1(42, nil)
	require.Equal(t, 42, v)

	assert.PanicsWithError(t, "boom", func() {
		Must1(0, errors.New("boom"))
	})
}

func TestMust2(t *testing.T) {
	a, b := Must2("x", 7, nil)
	require.Equal(t, "x", a)
	require.Equal(t, 7, b)

	assert.PanicsWithError(t, "boom", func() {
		Must2("", 0, errors.New("boom"))
	})
}
