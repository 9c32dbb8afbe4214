package inapp

import "fmt"

// ErrorKind classifies a remote failure.
type ErrorKind string

const (
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork ErrorKind = "network"
	// KindServer means the server answered with a non-2xx status or success=false.
	KindServer ErrorKind = "server"
	// KindDecode means the response body could not be understood.
	KindDecode ErrorKind = "decode"
)

// FetchError is returned when unread messages could not be retrieved.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	return describe("fetch", e.Kind, e.StatusCode, e.Message, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AckError is returned when a mark-read call failed. Only KindNetwork and
// KindServer are used.
type AckError struct {
	Kind       ErrorKind
	MessageID  string
	StatusCode int
	Message    string
	Err        error
}

func (e *AckError) Error() string {
	return describe(fmt.Sprintf("acknowledge %s", e.MessageID), e.Kind, e.StatusCode, e.Message, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }

func describe(op string, kind ErrorKind, status int, msg string, err error) string {
	s := fmt.Sprintf("%s failed (%s)", op, kind)
	if status != 0 {
		s += fmt.Sprintf(": status %d", status)
	}
	if msg != "" {
		s += ": " + msg
	}
	if err != nil {
		s += ": " + err.Error()
	}
	return s
}
