package errors

var (
	// Domain errors — used in pipeline/store
	ErrMessageNotFound  = NotFound("message not found")
	ErrUserNotFound     = NotFound("user not found")
	ErrEmptyMessage     = InvalidArg("message has no content")
	ErrEmptyText        = InvalidArg("text cannot be empty")
	ErrRecipientMissing = InvalidArg("recipient id is required")
	ErrChatMissing      = InvalidArg("chat id is required")
	ErrQueryTooShort    = InvalidArg("search query must be at least 2 characters")
	ErrNoRecipients     = InvalidArg("at least one recipient is required")
	ErrNotSender        = Forbidden("only the sender can modify this message")
	ErrDeleteType       = InvalidArg("delete_type must be just_me or everyone")
)
