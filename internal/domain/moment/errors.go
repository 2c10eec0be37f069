package moment

import (
	"errors"

	"github.com/mwork/moments-api/internal/pkg/errorhandler"
)

var (
	ErrMomentNotFound     = errors.New("moment not found")
	ErrStoryNotFound      = errors.New("story not found")
	ErrNotMomentOwner     = errors.New("you can only manage your own moments")
	ErrNotStoryOwner      = errors.New("you can only manage your own stories")
	ErrNotStoryMember     = errors.New("only the story owner and members can post into it")
	ErrStoryDeleted       = errors.New("story has been deleted")
	ErrNotInStory         = errors.New("moment is not part of a story")
	ErrLabelRequired      = errors.New("visibility is required for a standalone moment")
	ErrCaptionTooLong     = errors.New("caption exceeds 2000 characters")
	ErrMemberNotConnected = errors.New("story members must be connected to the owner")
	ErrTooManyTags        = errors.New("too many tagged users")
)

// Error carries a transport-neutral kind for errorhandler.Handle.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string     { return e.Err.Error() }
func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) ErrorKind() string { return e.Kind }

func notFound(err error) error        { return &Error{Kind: errorhandler.KindNotFound, Err: err} }
func accessDenied(err error) error    { return &Error{Kind: errorhandler.KindAccessDenied, Err: err} }
func invalidState(err error) error    { return &Error{Kind: errorhandler.KindInvalidState, Err: err} }
func invalidArgument(err error) error { return &Error{Kind: errorhandler.KindInvalidArgument, Err: err} }

// KindOf returns the kind of err, or "" for untyped errors.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
