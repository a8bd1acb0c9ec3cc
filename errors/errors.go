package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// User-facing denials. Their text is returned verbatim to the caller.
	ErrMessagingNotAllowed  = fmt.Errorf("your current plan does not allow messaging")
	ErrChatLimitExceeded    = fmt.Errorf("monthly limit of new chats reached for your plan")
	ErrMessageLimitExceeded = fmt.Errorf("message limit reached for this chat")
	ErrMutualMatchRequired  = fmt.Errorf("a mutual accepted interest is required before starting a chat")
	ErrNotAParticipant      = fmt.Errorf("you are not a participant of this thread")
	ErrThreadNotFound       = fmt.Errorf("thread not found")
	ErrMessageNotFound      = fmt.Errorf("message not found in this thread")
	ErrNoLinkedProfile      = fmt.Errorf("no active linked profile for this account")
	ErrTwoParticipants      = fmt.Errorf("a thread requires at least two participants")

	// ErrMessageBlocked is the target for errors.Is on moderation blocks.
	ErrMessageBlocked = fmt.Errorf("message blocked")
)

// ViolationType identifies which moderation rule rejected a message.
type ViolationType string

const (
	ViolationSuspiciousNumbers ViolationType = "suspicious_numbers"
	ViolationEmail             ViolationType = "email_sharing"
	ViolationURL               ViolationType = "url_sharing"
	ViolationSocialContact     ViolationType = "social_contact"
)

// MessageBlockedError carries the moderation outcome to the caller. Reason is
// designed to be shown verbatim to the end user.
type MessageBlockedError struct {
	Violation ViolationType
	Reason    string
}

func (e *MessageBlockedError) Error() string {
	return fmt.Sprintf("message blocked (%s): %s", e.Violation, e.Reason)
}

func (e *MessageBlockedError) Is(target error) bool {
	return target == ErrMessageBlocked
}
