package cli

import (
	"strings"
	"testing"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"sigma-trader/internal/models"
)

func TestTruncateStringKeepsRunes(t *testing.T) {
	assert.Equal(t, "₹25,0...", TruncateString("₹25,000 credit", 8))
	assert.Equal(t, "निफ्...", TruncateString("निफ्टी साप्ताहिक", 7))
	assert.Equal(t, "₹25", TruncateString("₹25", 3))
}

func TestTruncateAndPadProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	// Property: truncation never exceeds the limit and keeps short strings intact
	properties.Property("TruncateString respects max length", prop.ForAll(
		func(s string, maxLen int) bool {
			out := TruncateString(s, maxLen)
			if utf8.RuneCountInString(s) <= maxLen {
				return out == s
			}
			return utf8.ValidString(out) && utf8.RuneCountInString(out) == maxLen &&
				strings.HasPrefix(s, strings.TrimSuffix(out, "..."))
		},
		gen.OneGenOf(gen.AlphaString(), gen.UnicodeString(unicode.Devanagari)),
		gen.IntRange(1, 40),
	))

	// Property: padding reaches the width and preserves the prefix
	properties.Property("PadRight pads to width", prop.ForAll(
		func(s string, width int) bool {
			out := PadRight(s, width)
			return strings.HasPrefix(out, s) && len(out) >= width && (len(s) >= width || len(out) == width)
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "999", FormatVolume(999))
	assert.Equal(t, "1.50 K", FormatVolume(1500))
	assert.Equal(t, "9.99 L", FormatVolume(998800))
	assert.Equal(t, "1.00 Cr", FormatVolume(10000000))
}

func TestFormatLeg(t *testing.T) {
	leg := models.Leg{Side: models.Call, Strike: 25450, Action: models.ActionSell, Quantity: 50}
	assert.Equal(t, "SELL CE 25450 x50", FormatLeg(leg))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
}
