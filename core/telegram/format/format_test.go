package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "Tom &amp; Jerry &lt;3&gt;", EscapeHTML("Tom & Jerry <3>"))
	assert.Equal(t, "<b>a&amp;b</b>", Bold("a&b"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 30))
	assert.Equal(t, "Прив…", Truncate("Привет мир", 5))
	assert.Equal(t, "", Truncate("x", 0))
	assert.Equal(t, "a", Truncate("abc", 1))
}

func TestNumbers(t *testing.T) {
	assert.Equal(t, "5", Quantity(5))
	assert.Equal(t, "0.5", Quantity(0.5))
	assert.Equal(t, "1.25", Quantity(1.25))
	assert.Equal(t, "50.00", Price(50))
	assert.Equal(t, "12.50 ₽", Money(12.5, "₽"))
	assert.Equal(t, "3.00", Money(3, ""))
}
