package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrinterLines(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out bytes.Buffer
	p := New(&out)
	p.Step("Typing %s...", "tweet")
	p.Success("Posted")
	p.Warn("No popup")
	p.Error("Could not post: %v", "timeout")

	assert.Equal(t, "Typing tweet...\n✓ Posted\n⚠️  No popup\n❌ Could not post: timeout\n", out.String())
}

func TestBannerFramesLines(t *testing.T) {
	var out bytes.Buffer
	New(&out).Banner("TITLE", "second line")

	s := out.String()
	assert.Contains(t, s, "TITLE")
	assert.Contains(t, s, "second line")
	assert.Contains(t, s, "=====")
}
