package sequencer

import (
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var (
	ErrUnknownTrack     = errors.New("unknown track")
	ErrWrongTrackKind   = errors.New("operation does not apply to this kind of track")
	ErrNoteExists       = errors.New("a note already exists at this pitch and step")
	ErrNoteNotFound     = errors.New("note not found")
	ErrBlockOverlap     = errors.New("pattern block overlaps another block on the same track")
	ErrBlockNotFound    = errors.New("pattern block not found")
	ErrOutOfRange       = errors.New("value out of range")
	ErrVersionNotFound  = errors.New("version not found")
	ErrMalformedProject = errors.New("malformed project document")
)

// Tags attached to errors leaving this package. Hosts switch on ftag.Get(err).
const (
	TagInvalid   ftag.Kind = "INVALID_ARGUMENT"
	TagNotFound  ftag.Kind = "NOT_FOUND"
	TagConflict  ftag.Kind = "CONFLICT"
	TagCancelled ftag.Kind = "CANCELLED"
	TagMalformed ftag.Kind = "MALFORMED"
)

func tagged(err error, kind ftag.Kind, msg string) error {
	return fault.Wrap(err, ftag.With(kind), fmsg.With(msg))
}

func notFound(err error, msg string) error { return tagged(err, TagNotFound, msg) }
func conflict(err error, msg string) error { return tagged(err, TagConflict, msg) }
func invalid(err error, msg string) error  { return tagged(err, TagInvalid, msg) }
