// Package nss holds helpers shared by the name service encodings.
package nss

import (
	"errors"

	"github.com/danmuck/srvd/internal/protocol"
	"github.com/danmuck/srvd/internal/service"
)

var (
	ErrMalformedResponse = errors.New("nss: malformed response")
	ErrMalformedRequest  = errors.New("nss: malformed request")
)

// StatusError reports a query that completed with a non-success status.
type StatusError struct {
	Status service.Status
}

func (e *StatusError) Error() string {
	return "nss: query status " + e.Status.String()
}

// IsNotFound reports whether err carries StatusNotFound.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == service.StatusNotFound
}

// StatusErr converts a non-success status into a *StatusError.
func StatusErr(s service.Status) error {
	if s == service.StatusSuccess {
		return nil
	}
	return &StatusError{Status: s}
}

// RequestString returns the string carried by the first entry of the
// request's first field.
func RequestString(req *service.Request) (string, error) {
	e, err := firstEntry(req)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}

// RequestUint32 returns the uint32 carried by the first entry of the
// request's first field.
func RequestUint32(req *service.Request) (uint32, error) {
	e, err := firstEntry(req)
	if err != nil {
		return 0, err
	}
	v, err := e.Uint32()
	if err != nil {
		return 0, errors.Join(ErrMalformedRequest, err)
	}
	return v, nil
}

func firstEntry(req *service.Request) (*protocol.Entry, error) {
	f, ok := req.Packet.First()
	if !ok {
		return nil, ErrMalformedRequest
	}
	e, ok := f.First()
	if !ok {
		return nil, ErrMalformedRequest
	}
	return e, nil
}
