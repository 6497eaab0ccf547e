package models

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ValidateMessageContent counts characters, not bytes.
func ValidateMessageContent(content string) error {
	length := utf8.RuneCountInString(content)
	if length == 0 {
		return &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if length > MaxMessageLength {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("must be at most %d characters", MaxMessageLength)}
	}
	return nil
}

// NormalizeMessageType applies the "text" default and rejects oversized tags.
func NormalizeMessageType(messageType string) (string, error) {
	if messageType == "" {
		return DefaultMessageType, nil
	}
	if utf8.RuneCountInString(messageType) > MaxMessageTypeLen {
		return "", &ValidationError{Field: "messageType", Message: fmt.Sprintf("must be at most %d characters", MaxMessageTypeLen)}
	}
	return messageType, nil
}
