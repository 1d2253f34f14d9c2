package subscription

import "errors"

var (
	ErrNotSubscribable        = errors.New("content does not accept subscriptions")
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrAlreadySubscribed      = errors.New("already subscribed")
	ErrNotSubscribed          = errors.New("not subscribed")
	ErrSubscriptionFailed     = errors.New("subscription confirmation failed")
	ErrCancellationFailed     = errors.New("cancellation confirmation failed")
	ErrInvalidSubscribability = errors.New("invalid subscribability value")
	ErrCycle                  = errors.New("content hierarchy contains a cycle")
	ErrInvalidSettings        = errors.New("invalid subscription settings")
)
