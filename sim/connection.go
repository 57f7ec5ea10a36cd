package sim

// SendError marks a failure send or receive.
type SendError struct{}

// NewSendError creates a SendError.
func NewSendError() *SendError {
	return new(SendError)
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return "send error: destination buffer is full"
}

// A Connection is responsible for delivering messages to their destination.
type Connection interface {
	Named
	Hookable

	PlugIn(port Port)
	NotifyAvailable(port Port)
	NotifySend()
}

// HookPosConnDeliver marks a connection delivered a message.
var HookPosConnDeliver = &HookPos{Name: "Conn Deliver"}
