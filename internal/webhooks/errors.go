package webhooks

import "errors"

var (
	// ErrMalformedRequest means the body or content type could not be
	// interpreted.
	ErrMalformedRequest = errors.New("malformed webhook request")

	// ErrMissingTransactionID means the payload carried no transaction id.
	ErrMissingTransactionID = errors.New("missing transaction id")

	// ErrUnknownProvider means the provider parameter named no adapter.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrBodyTooLarge means the body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrAuthenticity means the notification failed its authenticity check.
	ErrAuthenticity = errors.New("authenticity check failed")

	// ErrUnauthenticated means the provider offers no way to authenticate
	// the notification.
	ErrUnauthenticated = errors.New("notification cannot be authenticated")

	// ErrUnconfiguredSecret means the verification secret is missing.
	ErrUnconfiguredSecret = errors.New("verification secret not configured")
)
