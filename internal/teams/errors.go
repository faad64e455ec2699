package teams

import "errors"

// Stable error kinds for roster and succession operations. Handlers map
// these onto HTTP status codes; services return them unwrapped or wrapped
// with %w so errors.Is keeps working.
var (
	ErrValidation             = errors.New("invalid input")
	ErrPermission             = errors.New("actor lacks required role")
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateApplication   = errors.New("membership row already exists for this team and user")
	ErrDuplicatePendingInvite = errors.New("a pending invite already exists for this team and user")
	ErrTeamFull               = errors.New("team has no free roster slots")
	ErrNotRecruiting          = errors.New("team is not recruiting")
	ErrGameConflict           = errors.New("user already has an active membership for this game")
	ErrAlreadyMember          = errors.New("user is already an active member of this team")
	ErrInvalidTarget          = errors.New("operation not allowed for this member")
)
