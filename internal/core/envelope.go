package core

// ToolError is the payload of a failed tool call, distinct from transport
// errors. The JSON form is what clients see in an isError result.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewToolError maps err and stamps the call's trace id.
func NewToolError(err error, traceID string) ToolError {
	info := MapError(err)
	return ToolError{Code: info.Code, Message: info.Message, TraceID: traceID}
}
