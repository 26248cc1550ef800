// Package errors defines the error taxonomy shared across the client.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound indicates a channel, group or user could not be resolved.
	ErrNotFound = errors.New("not found")

	// ErrNotListening indicates a stream operation was attempted with no live stream.
	ErrNotListening = errors.New("not listening to the stream; call Listen first")

	// ErrEndOfStream indicates the upstream closed the stream.
	ErrEndOfStream = errors.New("end of stream")

	// ErrAlreadyConnected indicates the stream driver was connected twice.
	ErrAlreadyConnected = errors.New("stream driver already initialised")

	// ErrInsecureURL indicates the stream URL is not a wss:// URL.
	ErrInsecureURL = errors.New("stream url must use the wss scheme")

	// ErrMigrationInProgress indicates the team is moving between servers
	// and the caller should retry the session shortly.
	ErrMigrationInProgress = errors.New("team is being migrated between servers; try again in a few seconds")

	// ErrInvalidWeights indicates a weighted reply whose weights do not sum to one.
	ErrInvalidWeights = errors.New("reply weights must sum to 1.0")
)

// ConfigError reports a missing or invalid construction parameter.
type ConfigError struct {
	Field string
	Issue string
}

func (e *ConfigError) Error() string {
	if e.Issue == "" {
		return fmt.Sprintf("missing required parameter: %s", e.Field)
	}
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Issue)
}

// ResolutionError reports a reference that did not resolve after a refresh.
type ResolutionError struct {
	Kind      string
	Reference string
	Reason    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Reference)
}

// Is matches ErrNotFound.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrNotFound
}

// NewChannelNotFound reports an unresolvable #channel reference.
func NewChannelNotFound(ref string) *ResolutionError {
	return &ResolutionError{Kind: "channel", Reference: ref, Reason: "channel not found"}
}

// NewGroupNotFound reports an unresolvable private group reference.
func NewGroupNotFound(ref string) *ResolutionError {
	return &ResolutionError{Kind: "group", Reference: ref, Reason: "group not found"}
}

// NewUserNotFound reports an unresolvable user reference.
func NewUserNotFound(ref string) *ResolutionError {
	return &ResolutionError{Kind: "user", Reference: ref, Reason: "user not found"}
}

// NewCannotMessageUser reports a user with no direct message channel.
func NewCannotMessageUser(ref string) *ResolutionError {
	return &ResolutionError{Kind: "direct_message", Reference: ref, Reason: "cannot message user"}
}

// ResponseError is a REST call that came back with ok=false.
type ResponseError struct {
	Command   string
	Code      string
	Message   string
	Transient bool
	Response  map[string]any
	Err       error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed: %s (%s)", e.Command, e.Message, e.Code)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Is matches ErrMigrationInProgress for migration responses.
func (e *ResponseError) Is(target error) bool {
	return target == ErrMigrationInProgress && e.Code == "migration_in_progress"
}

// IsResponseError reports whether err is a response error with the given code.
func IsResponseError(err error, code string) bool {
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.Code == code
}

// ConnectionError wraps a stream transport failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("there was a connection error in the stream: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotInChannelError reports a mutating operation in a channel the bot is only a guest in.
type NotInChannelError struct {
	Channel string
}

func (e *NotInChannelError) Error() string {
	return fmt.Sprintf("the bot is not a member of %s and cannot post there", e.Channel)
}

// TransientError is a failure worth retrying.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(message string, err error) *TransientError {
	return &TransientError{Message: message, Err: err}
}

// PermanentError is a failure that will not improve on retry.
type PermanentError struct {
	Message string
	Err     error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as non-retryable.
func NewPermanentError(message string, err error) *PermanentError {
	return &PermanentError{Message: message, Err: err}
}

// IsTransientError reports whether err is worth retrying. Response errors
// count when their code is classified as transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.Transient
	}
	return false
}
