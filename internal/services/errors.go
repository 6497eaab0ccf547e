package services

import "errors"

var (
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrSelfConversation = errors.New("cannot create conversation with yourself")
	ErrUserNotFound     = errors.New("user not found")
	ErrUnauthenticated  = errors.New("unauthenticated")
)
