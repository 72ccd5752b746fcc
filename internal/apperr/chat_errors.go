package apperr

var (
	ErrCredentialMissing    = Unauthorized("credential missing")
	ErrCredentialInvalid    = Unauthorized("credential invalid or expired")
	ErrUserNotFound         = NotFound("user not found")
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrNotParticipant       = New(CodeNotParticipant, "user is not a participant of this conversation")
	ErrSelfConversation     = InvalidArg("cannot start a conversation with yourself")
	ErrEmptyMessage         = InvalidArg("message text or attachment required")
	ErrUnknownCommand       = InvalidArg("unknown command")
)

func ErrMissingField(field string) error {
	return InvalidArg(field + " is required")
}

func ErrPrivacyDenied(reason string) error {
	return Forbidden(reason)
}
