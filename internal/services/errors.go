package services

import "errors"

// Error kinds surfaced to callers. Advisory reads never return these; they
// degrade to safe defaults instead.
var (
	// ErrProviderUnavailable means no wallet provider is configured or
	// reachable.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrConnectionRejected means the wallet or its user declined account
	// access, or the access request itself failed.
	ErrConnectionRejected = errors.New("wallet connection rejected")

	// ErrActivationFailed means the activation transaction could not be
	// submitted or was reverted.
	ErrActivationFailed = errors.New("account activation failed")

	// ErrContractRejected means a contract call reverted or the node
	// rejected it.
	ErrContractRejected = errors.New("contract call rejected")
)
