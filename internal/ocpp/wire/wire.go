package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType OCPP-J消息类型
type MessageType int

const (
	// Call 请求消息
	Call MessageType = 2
	// CallResult 响应消息
	CallResult MessageType = 3
	// CallError 错误消息
	CallError MessageType = 4
)

// ErrorCode OCPP-J线路层错误码
type ErrorCode string

const (
	ErrNotImplemented              ErrorCode = "NotImplemented"
	ErrNotSupported                ErrorCode = "NotSupported"
	ErrSecurityError               ErrorCode = "SecurityError"
	ErrPropertyConstraintViolation ErrorCode = "PropertyConstraintViolation"
	ErrInternalError               ErrorCode = "InternalError"
	ErrFormationViolation          ErrorCode = "FormationViolation"
	ErrGenericError                ErrorCode = "GenericError"
	ErrTimeout                     ErrorCode = "Timeout"
	ErrCancelled                   ErrorCode = "Cancelled"
)

// Error 协议层错误，路由器将其序列化为CALLERROR帧
type Error struct {
	Code        ErrorCode
	Description string
	Details     interface{}
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError 创建协议错误
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewErrorWithDetails 创建带细节的协议错误
func NewErrorWithDetails(code ErrorCode, description string, details interface{}) *Error {
	return &Error{Code: code, Description: description, Details: details}
}

// AsError 将任意error转换为协议错误，非协议错误归为InternalError
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if oe, ok := err.(*Error); ok {
		return oe
	}
	return &Error{Code: ErrInternalError, Description: err.Error()}
}

// Frame 解析后的OCPP-J帧
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// MarshalCall 序列化CALL帧: [2, messageId, action, payload]
func MarshalCall(messageID, action string, payload interface{}) ([]byte, error) {
	return marshalTuple([]interface{}{Call, messageID, action, payload})
}

// MarshalCallResult 序列化CALLRESULT帧: [3, messageId, payload]
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	return marshalTuple([]interface{}{CallResult, messageID, payload})
}

// MarshalCallError 序列化CALLERROR帧: [4, messageId, errorCode, errorDescription, errorDetails]
func MarshalCallError(messageID string, ocppErr *Error) ([]byte, error) {
	details := ocppErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return marshalTuple([]interface{}{CallError, messageID, string(ocppErr.Code), ocppErr.Description, details})
}

func marshalTuple(tuple []interface{}) ([]byte, error) {
	data, err := json.Marshal(tuple)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// Unmarshal 反序列化一个OCPP-J帧
func Unmarshal(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, NewError(ErrFormationViolation, "message is not a JSON array")
	}

	if len(elements) < 3 {
		return nil, NewError(ErrFormationViolation, "message array too short")
	}

	var msgType int
	if err := json.Unmarshal(elements[0], &msgType); err != nil {
		return nil, NewError(ErrFormationViolation, "message type is not an integer")
	}

	var msgID string
	if err := json.Unmarshal(elements[1], &msgID); err != nil {
		return nil, NewError(ErrFormationViolation, "message id is not a string")
	}
	if msgID == "" || len(msgID) > 36 {
		return nil, NewError(ErrFormationViolation, "message id must be 1..36 characters")
	}

	frame := &Frame{Type: MessageType(msgType), MessageID: msgID}

	switch MessageType(msgType) {
	case Call:
		if len(elements) != 4 {
			return nil, NewError(ErrFormationViolation, "Call message must have exactly 4 elements")
		}
		if err := json.Unmarshal(elements[2], &frame.Action); err != nil {
			return nil, NewError(ErrFormationViolation, "action is not a string")
		}
		if frame.Action == "" {
			return nil, NewError(ErrFormationViolation, "action is required for Call messages")
		}
		frame.Payload = elements[3]
		return frame, nil

	case CallResult:
		if len(elements) != 3 {
			return nil, NewError(ErrFormationViolation, "CallResult message must have exactly 3 elements")
		}
		frame.Payload = elements[2]
		return frame, nil

	case CallError:
		if len(elements) < 4 || len(elements) > 5 {
			return nil, NewError(ErrFormationViolation, "CallError message must have 4 or 5 elements")
		}
		if err := json.Unmarshal(elements[2], &frame.ErrorCode); err != nil {
			return nil, NewError(ErrFormationViolation, "error code is not a string")
		}
		if err := json.Unmarshal(elements[3], &frame.ErrorDescription); err != nil {
			return nil, NewError(ErrFormationViolation, "error description is not a string")
		}
		if len(elements) == 5 {
			frame.ErrorDetails = elements[4]
		}
		return frame, nil

	default:
		return nil, NewError(ErrFormationViolation, fmt.Sprintf("invalid message type: %d", msgType))
	}
}
