package entities

import "errors"

var (
	ErrNotFound                    = errors.New("not found")
	ErrBusinessNotFound            = errors.New("business not found")
	ErrDuplicateActiveConversation = errors.New("active conversation already exists")
	ErrDuplicateMessage            = errors.New("message already recorded")
	ErrNotConnected                = errors.New("transport not connected")
)
