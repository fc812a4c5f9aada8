package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a job did not produce an artifact
type ErrorKind string

const (
	ErrorKindInput     ErrorKind = "input"
	ErrorKindMetadata  ErrorKind = "metadata"
	ErrorKindDownload  ErrorKind = "download"
	ErrorKindArchive   ErrorKind = "archive"
	ErrorKindCancelled ErrorKind = "cancelled"
	ErrorKindInternal  ErrorKind = "internal"
)

// Sentinel errors, one per kind, so callers can use errors.Is
var (
	ErrInvalidInput   = errors.New("invalid request")
	ErrMetadataFetch  = errors.New("failed to fetch media metadata")
	ErrDownloadFailed = errors.New("download failed")
	ErrArchiveFailed  = errors.New("failed to create archive")
	ErrCancelled      = errors.New("download cancelled")
	ErrInternal       = errors.New("internal error")

	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotReady = errors.New("artifact not ready")
)

var kindSentinels = map[ErrorKind]error{
	ErrorKindInput:     ErrInvalidInput,
	ErrorKindMetadata:  ErrMetadataFetch,
	ErrorKindDownload:  ErrDownloadFailed,
	ErrorKindArchive:   ErrArchiveFailed,
	ErrorKindCancelled: ErrCancelled,
	ErrorKindInternal:  ErrInternal,
}

// JobError carries a categorical kind for the caller and the internal cause for logs.
// Error() only exposes the category and the optional public detail.
type JobError struct {
	Kind   ErrorKind
	Detail string // safe to show to the caller
	Cause  error  // internal, logged only
}

// NewJobError creates a JobError of the given kind
func NewJobError(kind ErrorKind, detail string, cause error) *JobError {
	return &JobError{Kind: kind, Detail: detail, Cause: cause}
}

// InputError creates an input-kind JobError
func InputError(format string, args ...interface{}) *JobError {
	return &JobError{Kind: ErrorKindInput, Detail: fmt.Sprintf(format, args...)}
}

func (e *JobError) Error() string {
	msg := e.Public()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Public returns the short categorical message for the caller
func (e *JobError) Public() string {
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		return sentinel.Error()
	}
	return ErrInternal.Error()
}

// Unwrap exposes the kind sentinel and the cause
func (e *JobError) Unwrap() []error {
	errs := []error{}
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the ErrorKind of err, or ErrorKindInternal when it is not a JobError
func KindOf(err error) ErrorKind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	if errors.Is(err, ErrCancelled) {
		return ErrorKindCancelled
	}
	return ErrorKindInternal
}
