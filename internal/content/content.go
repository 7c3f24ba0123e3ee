// Package content validates outgoing user content and cleans incoming
// message text for plain-text display.
package content

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxMessageLength = 2000
	MaxAttachments   = 5
	MaxReplies       = 5
)

var (
	policy         = bluemonday.StrictPolicy()
	usernameRegex  = regexp.MustCompile(`^(\p{L}|[\d_.-])+$`)
	emojiNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// Sanitize strips every HTML tag from input and unescapes the entities the
// policy produced, leaving plain text.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// ValidateMessage checks the limits the API enforces on a new message.
func ValidateMessage(text string, attachments, replies int) error {
	if strings.TrimSpace(text) == "" && attachments == 0 {
		return errors.New("message cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return fmt.Errorf("message is %d characters long (max %d)", n, MaxMessageLength)
	}
	if attachments > MaxAttachments {
		return fmt.Errorf("too many attachments (max %d)", MaxAttachments)
	}
	if replies > MaxReplies {
		return fmt.Errorf("too many replies (max %d)", MaxReplies)
	}
	return nil
}

// ValidateUsername checks if the username is 2-32 characters of letters,
// digits, dot, dash or underscore.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if n := utf8.RuneCountInString(username); n < 2 || n > 32 {
		return errors.New("username must be between 2 and 32 characters")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: letters, digits, dot, dash, underscore)")
	}
	return nil
}

func ValidateEmojiName(name string) error {
	if name == "" || len(name) > 32 {
		return errors.New("emoji name must be between 1 and 32 characters")
	}
	if !emojiNameRegex.MatchString(name) {
		return errors.New("emoji name may only contain lowercase letters, digits and underscore")
	}
	return nil
}
