package publish

import "errors"

var (
	// ErrDeliveryRejected is returned when a webhook answers with a non-2xx status.
	ErrDeliveryRejected = errors.New("delivery rejected")

	// ErrNoEndpoint is returned when a webhook is built without a URL.
	ErrNoEndpoint = errors.New("webhook endpoint is required")

	// ErrNoAuditPath is returned when an audit log is built without a file path.
	ErrNoAuditPath = errors.New("audit log path is required")
)
