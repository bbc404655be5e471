package errs

import "errors"

var (
	ErrDBConn = errors.New("db connection failure")
	ErrMBConn = errors.New("message broker connection failure")
	ErrMBCh   = errors.New("message broker channel failure")
)
