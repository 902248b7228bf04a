package hmi

import "errors"

var (
	// ErrNotConnected is returned when no head unit is connected
	ErrNotConnected = errors.New("hmi not connected")
	// ErrTimedOut is the error form of a TIMED_OUT reply
	ErrTimedOut = errors.New("hmi request timed out")
)

// ResultCode is the HMI API result of a request
type ResultCode string

const (
	ResultSuccess             ResultCode = "SUCCESS"
	ResultUnsupportedRequest  ResultCode = "UNSUPPORTED_REQUEST"
	ResultUnsupportedResource ResultCode = "UNSUPPORTED_RESOURCE"
	ResultDisallowed          ResultCode = "DISALLOWED"
	ResultRejected            ResultCode = "REJECTED"
	ResultAborted             ResultCode = "ABORTED"
	ResultIgnored             ResultCode = "IGNORED"
	ResultTimedOut            ResultCode = "TIMED_OUT"
	ResultInvalidData         ResultCode = "INVALID_DATA"
	ResultInvalidID           ResultCode = "INVALID_ID"
	ResultDuplicateName       ResultCode = "DUPLICATE_NAME"
	ResultWarnings            ResultCode = "WARNINGS"
	ResultGenericError        ResultCode = "GENERIC_ERROR"
)

// resultCodes maps HMI API numeric codes
var resultCodes = map[int]ResultCode{
	0:  ResultSuccess,
	1:  ResultUnsupportedRequest,
	2:  ResultUnsupportedResource,
	3:  ResultDisallowed,
	4:  ResultRejected,
	5:  ResultAborted,
	6:  ResultIgnored,
	10: ResultTimedOut,
	11: ResultInvalidData,
	13: ResultInvalidID,
	14: ResultDuplicateName,
	21: ResultWarnings,
	22: ResultGenericError,
}

// ResultCodeFromInt converts a numeric HMI API result code
func ResultCodeFromInt(code int) ResultCode {
	if rc, ok := resultCodes[code]; ok {
		return rc
	}
	return ResultGenericError
}

// Int returns the numeric HMI API result code
func (c ResultCode) Int() int {
	for n, rc := range resultCodes {
		if rc == c {
			return n
		}
	}
	return 22
}

// Successful reports whether the request had its effect
func (c ResultCode) Successful() bool {
	return c == ResultSuccess || c == ResultWarnings
}

// Request is one HMI API call
type Request struct {
	Method        string         `json:"method"`
	CorrelationID uint32         `json:"id,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	// Notification requests have no reply
	Notification bool `json:"-"`
}

// Event is the reply to a request
type Event struct {
	CorrelationID uint32         `json:"id"`
	Method        string         `json:"method"`
	ResultCode    ResultCode     `json:"result_code"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Observer receives the reply of one request
type Observer func(Event)

// Transport carries requests to the head unit
type Transport interface {
	Send(req Request) error
}
