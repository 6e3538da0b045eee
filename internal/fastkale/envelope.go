package fastkale

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoData is returned when a successful response carries no data.
var ErrNoData = errors.New("No data in response")

const defaultErrorMessage = "Request failed"

// APIError is a failure reported by the backend.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Details   any
	RequestID string
}

func (e *APIError) Error() string {
	return e.Message
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

// getData unwraps the data field of a response envelope into T.
func getData[T any](res *CallResult) (*T, error) {
	var env envelope
	parsed := res.json && json.Unmarshal(res.raw, &env) == nil

	if !res.OK {
		apiErr := &APIError{Status: res.Status, Message: defaultErrorMessage}
		if parsed {
			apiErr.RequestID = env.RequestID
			if env.Error != nil {
				apiErr.Code = env.Error.Code
				apiErr.Details = env.Error.Details
				if env.Error.Message != "" {
					apiErr.Message = env.Error.Message
				}
			}
		}
		return nil, apiErr
	}

	// A literal null decodes into RawMessage as the bytes "null"
	if !parsed || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrNoData
	}

	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}
	return &data, nil
}

// EnvelopeMessage returns the top level message of a success envelope.
func EnvelopeMessage(res *CallResult) string {
	var env envelope
	if !res.json || json.Unmarshal(res.raw, &env) != nil {
		return ""
	}
	return env.Message
}

// DecodeData unwraps the data of a raw call result. Backend failures are
// returned as *APIError.
func DecodeData[T any](res *CallResult) (*T, error) {
	return getData[T](res)
}
