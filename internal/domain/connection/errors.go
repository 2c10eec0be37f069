package connection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
	"github.com/mwork/moments-api/internal/pkg/errorhandler"
)

// Kind classifies a lifecycle failure.
type Kind string

const (
	KindNotFound        Kind = errorhandler.KindNotFound
	KindAccessDenied    Kind = errorhandler.KindAccessDenied
	KindAlreadyExists   Kind = errorhandler.KindAlreadyExists
	KindInvalidState    Kind = errorhandler.KindInvalidState
	KindLimitExceeded   Kind = errorhandler.KindLimitExceeded
	KindInvalidArgument Kind = errorhandler.KindInvalidArgument
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrRequestNotFound    = errors.New("connection request not found")

	ErrNotRecipient              = errors.New("only the recipient can resolve this request")
	ErrNotRequester              = errors.New("only the requester can cancel this request")
	ErrNotBlocker                = errors.New("only the user who blocked can unblock")
	ErrInviteRequired            = errors.New("an invite token is required to connect with this user")
	ErrInvalidInvite             = errors.New("invite token is invalid or expired")
	ErrInvalidConnectionRequest  = errors.New("connection requests are not allowed between these users")
	ErrAlreadyConnected          = errors.New("users are already connected")
	ErrRequestAlreadyPending     = errors.New("a connection request is already pending")
	ErrTierChangeAlreadyPending  = errors.New("a tier change request is already pending")
	ErrRequestNotPending         = errors.New("request is no longer pending")
	ErrNotInitialRequest         = errors.New("request is not an initial connect request")
	ErrNotTierChangeRequest      = errors.New("request is not a tier change request")
	ErrNotConnected              = errors.New("users are not connected")
	ErrStaleTierChange           = errors.New("connection tier changed since the request was made")
	ErrAlreadyBlocked            = errors.New("user is already blocked")
	ErrNotBlocked                = errors.New("user is not blocked")
	ErrSelfTarget                = errors.New("cannot target yourself")
	ErrSameTier                  = errors.New("connection is already at this tier")
	ErrNotConnectedTier          = errors.New("tier must be FRIEND, CLOSE_FRIEND or SPECIAL")
	ErrLimitExceeded             = errors.New("connection limit exceeded")
	ErrMessageTooLong            = errors.New("message exceeds 300 characters")
	ErrConcurrentRequestConflict = errors.New("a conflicting request was created concurrently")
)

// Error is a typed lifecycle error. Err is the sentinel describing the cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string     { return e.Err.Error() }
func (e *Error) Unwrap() error     { return e.Err }
func (e *Error) ErrorKind() string { return string(e.Kind) }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func notFound(err error) error        { return newError(KindNotFound, err) }
func accessDenied(err error) error    { return newError(KindAccessDenied, err) }
func alreadyExists(err error) error   { return newError(KindAlreadyExists, err) }
func invalidState(err error) error    { return newError(KindInvalidState, err) }
func invalidArgument(err error) error { return newError(KindInvalidArgument, err) }

// KindOf returns the kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var le *LimitError
	if errors.As(err, &le) {
		return KindLimitExceeded
	}
	return ""
}

// Side says which party of a transition ran out of capacity.
type Side string

const (
	SideSelf Side = "SELF"
	SidePeer Side = "PEER"
)

// LimitError reports a failed capacity check.
type LimitError struct {
	Side    Side
	UserID  uuid.UUID
	Tier    visibility.Tier
	Current int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s has %d of %d %s connections", ErrLimitExceeded, e.Side, e.Current, e.Limit, e.Tier)
}

func (e *LimitError) Unwrap() error     { return ErrLimitExceeded }
func (e *LimitError) ErrorKind() string { return string(KindLimitExceeded) }

// ErrorDetails exposes the payload to the transport.
func (e *LimitError) ErrorDetails() map[string]string {
	return map[string]string{
		"side":    string(e.Side),
		"tier":    string(e.Tier),
		"current": strconv.Itoa(e.Current),
		"limit":   strconv.Itoa(e.Limit),
	}
}
