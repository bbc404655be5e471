package core

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotOwner          = errors.New("order is owned by another courier")
	ErrInvalidTransition = errors.New("order status does not allow this operation")
	ErrValidation        = errors.New("invalid request")
	ErrUserNotFound      = errors.New("user not found")
)
