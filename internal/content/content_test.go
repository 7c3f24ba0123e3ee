package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStripsMarkup(t *testing.T) {
	cases := map[string]string{
		"**bold** stays markdown":                   "**bold** stays markdown",
		"hey <b>you</b>":                            "hey you",
		"<img src=x onerror=alert(1)>look":          "look",
		"<a href='https://rvlt.gg/x'>invite</a> me": "invite me",
		"1 < 2 && 3 > 2":                            "1 < 2 && 3 > 2",
		"ünïcödé :smile:":                           "ünïcödé :smile:",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, ValidateMessage("hello", 0, 0))
	assert.NoError(t, ValidateMessage("", 1, 0), "an attachment alone is a message")
	assert.NoError(t, ValidateMessage(strings.Repeat("ж", MaxMessageLength), 0, 0), "length counts runes")

	assert.Error(t, ValidateMessage(" \n\t", 0, 0))
	assert.Error(t, ValidateMessage(strings.Repeat("a", MaxMessageLength+1), 0, 0))
	assert.Error(t, ValidateMessage("x", MaxAttachments+1, 0))
	assert.Error(t, ValidateMessage("x", 0, MaxReplies+1))
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"al", "revolt_bot", "j.doe-2", "пользователь", strings.Repeat("z", 32)} {
		assert.NoError(t, ValidateUsername(ok), ok)
	}
	for _, bad := range []string{"", "a", "two words", "me@home", "#tag", strings.Repeat("z", 33)} {
		assert.Error(t, ValidateUsername(bad), bad)
	}
}

func TestValidateEmojiName(t *testing.T) {
	assert.NoError(t, ValidateEmojiName("party_parrot"))
	assert.NoError(t, ValidateEmojiName("x1"))
	assert.Error(t, ValidateEmojiName("Party"))
	assert.Error(t, ValidateEmojiName(""))
	assert.Error(t, ValidateEmojiName(strings.Repeat("a", 33)))
}
