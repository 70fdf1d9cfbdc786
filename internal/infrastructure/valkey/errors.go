package valkey

import "errors"

var (
	ErrDisabled         = errors.New("valkey: disabled in configuration")
	ErrConnectionFailed = errors.New("valkey: connection failed")
	ErrClosed           = errors.New("valkey: client closed")
)
