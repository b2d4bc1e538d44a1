package phonenfc

import "time"

// Device timing constants
const (
	DeviceTimeout   = 30 * time.Second // Device inactivity timeout
	CleanupInterval = 15 * time.Second // Cleanup check interval
	WriteTimeout    = 5 * time.Second  // Deadline for one message to a phone
)

// Error codes sent to phones in error messages
const (
	ErrCodeReadError      = "READ_ERROR"
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeInvalidType    = "INVALID_MESSAGE_TYPE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidEvent   = "INVALID_EVENT"
	ErrCodeInvalidDevice  = "INVALID_DEVICE"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
)
