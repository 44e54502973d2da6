package notify

import "errors"

var (
	ErrFailedToSend  = errors.New("notify: failed to send email")
	ErrInvalidConfig = errors.New("notify: invalid config")
	ErrInvalidEmail  = errors.New("notify: invalid email message")
)
