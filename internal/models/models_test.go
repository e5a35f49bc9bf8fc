package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadMonths(t *testing.T) {
	assert.Equal(t, make([]int, 12), PadMonths(nil))
	assert.Equal(t, []int{5, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, PadMonths([]int{5, 10}))

	fourteen := make([]int, 14)
	fourteen[13] = 99
	assert.Len(t, PadMonths(fourteen), 12)
}

func TestValidPermit(t *testing.T) {
	for _, p := range []int{PermitRegular, PermitElevated, PermitAdmin, PermitSuper} {
		assert.True(t, ValidPermit(p))
	}
	for _, p := range []int{-1, 3, 8, 10} {
		assert.False(t, ValidPermit(p))
	}
}

func TestIsProtected(t *testing.T) {
	assert.True(t, (&Member{Permit: PermitAdmin}).IsProtected())
	assert.False(t, (&Member{Permit: PermitRegular}).IsProtected())
	assert.False(t, (&Member{Permit: PermitSuper}).IsProtected())
}

func TestFullName(t *testing.T) {
	m := &Member{FirstName: "Frank", LastName: "Field"}
	assert.Equal(t, "Field Frank", m.FullName())
}
