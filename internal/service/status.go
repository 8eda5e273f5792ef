package service

import "strconv"

// Status is the outcome code carried by the leading field of a response.
type Status uint16

const (
	StatusSuccess  Status = 0
	StatusFail     Status = 1
	StatusNotFound Status = 2
	StatusUnavail  Status = 3
	StatusUnknown  Status = 65535
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFail:
		return "FAIL"
	case StatusNotFound:
		return "NOTFOUND"
	case StatusUnavail:
		return "UNAVAIL"
	case StatusUnknown:
		return "UNKNOWN"
	default:
		return "STATUS(" + strconv.Itoa(int(s)) + ")"
	}
}
