package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("ada@example.com"))
	assert.False(t, IsValidEmail("ada@example"))
	assert.False(t, IsValidEmail("ada example@x.com"))
	assert.False(t, IsValidEmail(""))
}

func TestIsValidPassword(t *testing.T) {
	assert.True(t, IsValidPassword("secret-1a"))
	assert.False(t, IsValidPassword("short1!"))
	assert.False(t, IsValidPassword("nodigits!!"))
	assert.False(t, IsValidPassword("nosymbol12"))
	assert.False(t, IsValidPassword("12345678!"))
}

func TestIsValidFullname(t *testing.T) {
	assert.True(t, IsValidFullname("Mary-Jane O'Neil"))
	assert.True(t, IsValidFullname("Zoë Ångström"))
	assert.False(t, IsValidFullname("R2D2"))
	assert.False(t, IsValidFullname(""))
}
