package hub

import "github.com/cockroachdb/errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventFailed       = errors.New("hub event handler failed")
)
