package cache

import "fmt"

// Kinds of internal-consistency failures.
const (
	ErrKindDuplicateTag      = "duplicate_tag"
	ErrKindUnflushedInstall  = "unflushed_install"
	ErrKindInvalidateInFill  = "invalidate_during_fill"
	ErrKindWriteBufferFull   = "write_buffer_overflow"
	ErrKindUnexpectedRsp     = "unexpected_response"
	ErrKindLineCrossing      = "line_crossing"
	ErrKindUnsupportedAccess = "unsupported_access"
)

// A ConsistencyError reports a state that a correct controller never reaches.
// The cache panics with it.
type ConsistencyError struct {
	Kind   string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache consistency error (%s): %s", e.Kind, e.Detail)
}

func panicConsistency(kind string, format string, args ...interface{}) {
	panic(&ConsistencyError{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	})
}
