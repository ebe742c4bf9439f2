package game

import (
	"errors"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable validation failure kind.
type Code string

const (
	CodeWrongPhase           Code = "WRONG_PHASE"
	CodeActorIncapacitated   Code = "ACTOR_INCAPACITATED"
	CodeAlreadyActed         Code = "ALREADY_ACTED"
	CodeInvalidActionForRole Code = "INVALID_ACTION_FOR_ROLE"
	CodeInvalidTarget        Code = "INVALID_TARGET"
	CodeTargetProtected      Code = "TARGET_PROTECTED"
	CodeInsufficientPoints   Code = "INSUFFICIENT_POINTS"
	CodeDuplicateVote        Code = "DUPLICATE_VOTE"
	CodeNotHost              Code = "NOT_HOST"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeCatalogMisconfigured Code = "CATALOG_MISCONFIGURED"

	CodeGameNotFound   Code = "GAME_NOT_FOUND"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeAlreadyDone    Code = "ALREADY_DONE"
)

// GRPCCode maps the code onto the closest gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeWrongPhase, CodeActorIncapacitated, CodeAlreadyActed, CodeTargetProtected,
		CodeInsufficientPoints, CodeInvalidTransition:
		return codes.FailedPrecondition
	case CodeInvalidActionForRole, CodeInvalidTarget, CodeInvalidInput:
		return codes.InvalidArgument
	case CodeDuplicateVote, CodeAlreadyDone:
		return codes.AlreadyExists
	case CodeNotHost:
		return codes.PermissionDenied
	case CodeGameNotFound, CodePlayerNotFound:
		return codes.NotFound
	case CodeCatalogMisconfigured:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is a validation failure. Returning one guarantees no state was mutated.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code so sentinel values compare equal to detailed instances.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the validation code from err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

var (
	ErrWrongPhase           = New(CodeWrongPhase, "action not allowed in the current phase")
	ErrActorIncapacitated   = New(CodeActorIncapacitated, "actor is not alive")
	ErrAlreadyActed         = New(CodeAlreadyActed, "actor already acted today")
	ErrInvalidActionForRole = New(CodeInvalidActionForRole, "action not available to this role")
	ErrInvalidTarget        = New(CodeInvalidTarget, "invalid target")
	ErrTargetProtected      = New(CodeTargetProtected, "target is protected")
	ErrInsufficientPoints   = New(CodeInsufficientPoints, "insufficient points")
	ErrDuplicateVote        = New(CodeDuplicateVote, "vote already recorded")
	ErrNotHost              = New(CodeNotHost, "only the host may do this")
	ErrInvalidTransition    = New(CodeInvalidTransition, "phase has no successor")
	ErrCatalogMisconfigured = New(CodeCatalogMisconfigured, "role catalog has no filler roles")
	ErrGameNotFound         = New(CodeGameNotFound, "game not found")
	ErrPlayerNotFound       = New(CodePlayerNotFound, "player not found")
	ErrInvalidInput         = New(CodeInvalidInput, "invalid input")
	ErrAlreadyDone          = New(CodeAlreadyDone, "already submitted")
)
