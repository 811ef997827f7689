package reddit

import "fmt"

// RequestError is returned when the request could not be constructed.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ResponseError is returned when the response body does not have the expected structure.
type ResponseError struct {
	Err error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}
