package devicemgr

import "errors"

var (
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDeviceOffline           = errors.New("device offline")
	ErrTimeout                 = errors.New("timeout")
	ErrInvalidParameter        = errors.New("invalid parameter")
	ErrConflict                = errors.New("conflict")
	ErrBackendUnavailable      = errors.New("backend unavailable")
	ErrNoTargets               = errors.New("no online devices for target type")
	ErrQueueFull               = errors.New("outbound queue full")
	ErrSessionNotFound         = errors.New("no such device session")
	ErrSendFailed              = errors.New("send to device failed")
	ErrInvalidStatusTransition = errors.New("invalid command status transition")
	ErrReservedDeviceID        = errors.New("device id is reserved")
	ErrCommandNotPending       = errors.New("command is not awaiting acknowledgement")
	ErrUnknownMessageType      = errors.New("unknown message_type")
)
