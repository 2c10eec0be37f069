package conversation

import (
	"errors"

	"github.com/mwork/moments-api/internal/pkg/errorhandler"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot open a conversation with yourself")
	ErrUnknownStatus        = errors.New("unknown conversation status")
)

// Error carries the errorhandler kind of a conversation failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string     { return e.Err.Error() }
func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) ErrorKind() string { return e.Kind }

func notFound(err error) error        { return &Error{Kind: errorhandler.KindNotFound, Err: err} }
func invalidArgument(err error) error { return &Error{Kind: errorhandler.KindInvalidArgument, Err: err} }
