package schema

import (
	"fmt"

	"github.com/danmuck/srvd/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Kind is the expected shape of a single-entry field.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindUint8
	KindUint16
	KindUint32
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxStringBytes bounds string entries accepted in requests.
const MaxStringBytes = 4096

type Requirement struct {
	Type protocol.Type
	Kind Kind
}

type ValidationError struct {
	RequestType protocol.Type
	FieldType   protocol.Type
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldType == protocol.TypeNone {
		return fmt.Sprintf("schema: request_type=%d: %s", e.RequestType, e.Reason)
	}
	return fmt.Sprintf("schema: request_type=%d field=%d: %s", e.RequestType, e.FieldType, e.Reason)
}

// Set maps a request type (the first field of a request) to the fields it
// must carry.
type Set map[protocol.Type][]Requirement

// Validate enforces required fields and entry shapes for the request held
// in p. Unknown extra fields are ignored.
func (s Set) Validate(p *protocol.Packet) error {
	first, ok := p.First()
	if !ok {
		log.Error().Msg("schema.Validate empty request")
		return ValidationError{Reason: "empty request"}
	}
	reqType := first.Type()
	log.Debug().Uint16("request_type", uint16(reqType)).Int("fields", p.FieldCount()).Msg("schema.Validate")

	reqs, ok := s[reqType]
	if !ok {
		log.Error().Uint16("request_type", uint16(reqType)).Msg("schema.Validate unknown request_type")
		return ValidationError{RequestType: reqType, Reason: "unknown request_type"}
	}
	for _, req := range reqs {
		f, found := p.Lookup(req.Type)
		if !found {
			log.Error().
				Uint16("request_type", uint16(reqType)).
				Uint16("field", uint16(req.Type)).
				Msg("schema.Validate missing field")
			return ValidationError{RequestType: reqType, FieldType: req.Type, Reason: "missing required field"}
		}
		if f.EntryCount() != 1 {
			log.Error().
				Uint16("request_type", uint16(reqType)).
				Uint16("field", uint16(req.Type)).
				Int("entries", f.EntryCount()).
				Msg("schema.Validate entry count mismatch")
			return ValidationError{RequestType: reqType, FieldType: req.Type, Reason: "expected exactly one entry"}
		}
		e, _ := f.First()
		if !sizeMatches(req.Kind, e.Size()) {
			log.Error().
				Uint16("request_type", uint16(reqType)).
				Uint16("field", uint16(req.Type)).
				Int("size", e.Size()).
				Stringer("kind", req.Kind).
				Msg("schema.Validate size mismatch")
			return ValidationError{RequestType: reqType, FieldType: req.Type, Reason: "size mismatch for " + req.Kind.String()}
		}
	}
	return nil
}

func sizeMatches(k Kind, size int) bool {
	switch k {
	case KindString:
		return size >= 1 && size <= MaxStringBytes
	case KindUint8:
		return size == 1
	case KindUint16:
		return size == 2
	case KindUint32:
		return size == 4
	default:
		return false
	}
}
