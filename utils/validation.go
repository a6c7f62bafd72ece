package utils

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const MaxNameLength = 255

// ValidateName checks a trimmed display name: folder names, page titles,
// game and studio titles. Names are capped at MaxNameLength runes.
func ValidateName(kind, name string) error {
	if err := ValidateText(kind, name); err != nil {
		return err
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%s too long (max %d characters)", kind, MaxNameLength)
	}

	return nil
}

// ValidateText checks free text such as poll questions and options, which
// have no length cap.
func ValidateText(kind, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}

	if !utf8.ValidString(text) {
		return fmt.Errorf("%s contains invalid UTF-8 characters", kind)
	}

	if strings.ContainsRune(text, '\x00') {
		return fmt.Errorf("%s contains invalid character: NUL", kind)
	}

	return nil
}

// ValidateHTTPURL accepts absolute http and https URLs only.
func ValidateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}

	return nil
}

// TrimNonEmpty trims every entry and drops the blank ones.
func TrimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
