package moderation

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"matchwire/errors"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	mod, err := NewModerator([]string{"badger", "scoundrel"}, '*')
	require.NoError(t, err)
	return NewPipeline(mod, slog.Default())
}

func TestPipeline_BlocksDigits(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	tests := []struct {
		name  string
		input string
	}{
		{"Raw phone number", "call me 01700000000"},
		{"Single digit", "meet at 7"},
		{"Spelled out digits", "my number is nine eight seven six"},
		{"Digit hidden in a word", "i am 2good"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Check(tt.input)
			req.True(v.Blocked)
			req.Equal(errors.ViolationSuspiciousNumbers, v.Violation)
			req.NotEmpty(v.Reason)
		})
	}
}

func TestPipeline_BlocksEmail(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	tests := []struct {
		name  string
		input string
	}{
		{"Plain address", "write to someone@example.org"},
		{"Obfuscated at", "someone [at] example dot org"},
		{"Provider name only", "find me on gmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Check(tt.input)
			req.True(v.Blocked)
			req.Equal(errors.ViolationEmail, v.Violation)
		})
	}
}

func TestPipeline_BlocksURLs(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	for _, input := range []string{
		"see https://example.dev/profile",
		"go to www.example-site.net",
		"visit mysite.com please",
	} {
		v := p.Check(input)
		req.True(v.Blocked, input)
		req.Equal(errors.ViolationURL, v.Violation, input)
	}
}

func TestPipeline_BlocksSocialSolicitation(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	v := p.Check("add me on WhatsApp")
	req.True(v.Blocked)
	req.Equal(errors.ViolationSocialContact, v.Violation)
}

func TestPipeline_ProfanityMasksWithoutBlocking(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	v := p.Check("you badger")
	req.False(v.Blocked)
	req.True(v.Flagged)
	req.Equal("you ******", v.Content)
	req.Equal([]string{"badger"}, v.Words)
}

func TestPipeline_SlangFromDictionaryMasks(t *testing.T) {
	req := require.New(t)
	censored, err := LoadCensoredWords()
	require.NoError(t, err)
	mod, err := NewModerator(censored.Words, '*')
	require.NoError(t, err)
	p := NewPipeline(mod, slog.Default())

	// Slang lives in the same embedded dictionaries as profanity and gets
	// the same treatment: masked and flagged, never blocked.
	v := p.Check("what a dimwit")
	req.False(v.Blocked)
	req.True(v.Flagged)
	req.Equal("what a ******", v.Content)
	req.Equal([]string{"dimwit"}, v.Words)
}

func TestPipeline_CleanMessagePasses(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	v := p.Check("hello, nice to meet you")
	req.False(v.Blocked)
	req.False(v.Flagged)
	req.Equal("hello, nice to meet you", v.Content)
}

func TestPipeline_DigitsWinOverOtherRules(t *testing.T) {
	req := require.New(t)
	p := newTestPipeline(t)

	// An address with digits trips the number rule first: checks run in order.
	v := p.Check("someone123@example.org")
	req.True(v.Blocked)
	req.Equal(errors.ViolationSuspiciousNumbers, v.Violation)
}
