package domain

import "errors"

var (
	ErrLinkNotFound         = errors.New("link not found")
	ErrLinkClosed           = errors.New("link closed")
	ErrChannelNotOpen       = errors.New("control channel not open")
	ErrUnknownMessageType   = errors.New("unknown control message type")
	ErrMalformedFrame       = errors.New("malformed control frame")
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrTransferIncomplete   = errors.New("transfer incomplete")
	ErrTransferSizeMismatch = errors.New("transfer size mismatch")
	ErrUnknownPreset        = errors.New("unknown quality preset")
	ErrControlDisabled      = errors.New("remote control disabled")
	ErrClipboardDisabled    = errors.New("clipboard sharing disabled")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrSelfConnection       = errors.New("cannot connect to self")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSignalingClosed      = errors.New("signaling connection closed")
	ErrNegotiationFailed    = errors.New("negotiation failed")
	ErrManagerClosed        = errors.New("connection manager closed")
	ErrInjectorUnavailable  = errors.New("input injector unavailable")
)
