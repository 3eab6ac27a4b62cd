package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrUpload   = errors.New("upload failed")
	ErrStatus   = errors.New("status check failed")
	ErrDownload = errors.New("download failed")
	ErrUpdate   = errors.New("update failed")
	ErrDelete   = errors.New("delete failed")
)

// RequestError describes a failed call to the conversion service.
type RequestError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error // transport or decode failure, if any
	kind       error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	// Without a response the message already carries the cause.
	if e.Err != nil && e.StatusCode != 0 {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	errs := []error{e.kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newRequestError(kind error, op string, status int, msg string, err error) *RequestError {
	if msg == "" {
		msg = kind.Error()
		if status == 0 && err != nil {
			msg += ": " + causeText(err)
		}
	}
	return &RequestError{Op: op, StatusCode: status, Message: msg, Err: err, kind: kind}
}

// causeText drops the method and URL that net/http prefixes to transport
// errors.
func causeText(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err.Error()
	}
	return err.Error()
}

// serverMessage extracts a string "detail" or "message" from an error body.
// Structured details, such as validation lists, are ignored.
func serverMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}

	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil && detail != "" {
			return detail
		}
	}
	return eb.Message
}
