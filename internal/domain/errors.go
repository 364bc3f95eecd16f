package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotConnected      = errors.New("hub not connected")
	ErrConnectInProgress = errors.New("hub connection attempt in progress")
	ErrConnectionFailed  = errors.New("hub connection failed")
	ErrSessionClosed     = errors.New("bidding session closed")
	ErrBidRejected       = errors.New("bid rejected")
)
