package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrLinkClosed        = errors.New("link closed")
	ErrLinkFailed        = errors.New("link failed")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrAuthorizeRejected = errors.New("authorization rejected")
	ErrPoolClosed        = errors.New("pool closed")
	ErrWSDisconnect      = errors.New("websocket disconnected")
)
