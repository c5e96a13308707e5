// Package errors provides explicit, human-readable error types for the
// replication toolkit. Every error carries a Reason and a Suggestion so a
// failed run tells the researcher what to do next.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ReplicationError is the base error type for all toolkit errors.
type ReplicationError struct {
	Code       ErrorCode
	Message    string
	Reason     string
	Suggestion string
	Cause      error
}

// ErrorCode represents the category of error for exit code mapping.
type ErrorCode int

const (
	CodeValidation ErrorCode = 1
	CodeData       ErrorCode = 2
	CodeCache      ErrorCode = 3
	CodeUpstream   ErrorCode = 4
	CodeInternal   ErrorCode = 5
)

func (e *ReplicationError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s\nReason: %s", msg, e.Reason)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s\nSuggestion: %s", msg, e.Suggestion)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s\nCaused by: %v", msg, e.Cause)
	}
	return msg
}

func (e *ReplicationError) Unwrap() error {
	return e.Cause
}

// ExitCode maps an error to the CLI exit code. Untyped errors are internal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var re interface{ code() ErrorCode }
	if stderrors.As(err, &re) {
		return int(re.code())
	}
	return int(CodeInternal)
}

func (e *ReplicationError) code() ErrorCode { return e.Code }

// ErrNotFound is the sentinel for the not-found class of storage failures.
// A cache miss is recognised with errors.Is(err, ErrNotFound) and nothing else.
var ErrNotFound = stderrors.New("artifact not found")

// ErrMissingClusterColumn is returned when no source table supplies the
// column used to cluster standard errors.
type ErrMissingClusterColumn struct {
	ReplicationError
	Column  string
	Sources []string
}

// NewMissingClusterColumn creates a new ErrMissingClusterColumn. The cause is
// the caller's own failure reason, if any (for example the error raised while
// loading the locality table).
func NewMissingClusterColumn(column string, sources []string, cause error) *ErrMissingClusterColumn {
	return &ErrMissingClusterColumn{
		ReplicationError: ReplicationError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("missing cluster column %q", column),
			Reason:     fmt.Sprintf("none of the sources [%s] provides column %q", strings.Join(sources, ", "), column),
			Suggestion: "supply a locality table carrying the cluster label or add it to the feature table",
			Cause:      cause,
		},
		Column:  column,
		Sources: sources,
	}
}

// ErrIndexMismatch is returned when two tables that must share an index do not.
type ErrIndexMismatch struct {
	ReplicationError
	Want []string
	Got  []string
}

// NewIndexMismatch creates a new ErrIndexMismatch.
func NewIndexMismatch(want, got []string) *ErrIndexMismatch {
	return &ErrIndexMismatch{
		ReplicationError: ReplicationError{
			Code:       CodeValidation,
			Message:    "index levels do not match",
			Reason:     fmt.Sprintf("expected levels %v, got %v", want, got),
			Suggestion: "reorder or rename index levels so both tables share the same layout",
		},
		Want: want,
		Got:  got,
	}
}

// ErrArtifactNotFound is returned by stores when a logical path has no artifact.
// It unwraps to ErrNotFound.
type ErrArtifactNotFound struct {
	ReplicationError
	Path string
}

// NewArtifactNotFound creates a new ErrArtifactNotFound.
func NewArtifactNotFound(path string) *ErrArtifactNotFound {
	return &ErrArtifactNotFound{
		ReplicationError: ReplicationError{
			Code:       CodeCache,
			Message:    fmt.Sprintf("artifact not found: %s", path),
			Reason:     "the cache has no artifact at this logical path",
			Suggestion: "build it with 'risksharing shocks build --write'",
			Cause:      ErrNotFound,
		},
		Path: path,
	}
}

// ErrCacheRead is returned when an artifact exists but cannot be read.
// It is never converted into a rebuild.
type ErrCacheRead struct {
	ReplicationError
	Path string
}

// NewCacheRead creates a new ErrCacheRead.
func NewCacheRead(path string, cause error) *ErrCacheRead {
	return &ErrCacheRead{
		ReplicationError: ReplicationError{
			Code:       CodeCache,
			Message:    fmt.Sprintf("failed to read cached artifact %s", path),
			Reason:     "the artifact exists but could not be retrieved or decoded",
			Suggestion: "inspect or remove the artifact; it will not be rebuilt automatically",
			Cause:      cause,
		},
		Path: path,
	}
}

// ErrSchemaMismatch is returned when a dataset lacks required index levels or columns.
type ErrSchemaMismatch struct {
	ReplicationError
	Dataset string
	Missing []string
}

// NewSchemaMismatch creates a new ErrSchemaMismatch.
func NewSchemaMismatch(dataset string, missing []string) *ErrSchemaMismatch {
	return &ErrSchemaMismatch{
		ReplicationError: ReplicationError{
			Code:       CodeData,
			Message:    fmt.Sprintf("dataset %s has an unexpected schema", dataset),
			Reason:     fmt.Sprintf("missing fields: %v", missing),
			Suggestion: "rebuild the dataset from the survey sources",
		},
		Dataset: dataset,
		Missing: missing,
	}
}

// ErrPathMissing is returned when a survey asset is absent from the data library.
type ErrPathMissing struct {
	ReplicationError
	Path string
}

// NewPathMissing creates a new ErrPathMissing.
func NewPathMissing(path string, cause error) *ErrPathMissing {
	return &ErrPathMissing{
		ReplicationError: ReplicationError{
			Code:       CodeData,
			Message:    fmt.Sprintf("survey asset missing: %s", path),
			Reason:     "the data library has no file at this path",
			Suggestion: "run from an editable checkout of the data library or pull the data with dvc",
			Cause:      cause,
		},
		Path: path,
	}
}

// DecryptionHint is appended to decryption failures from the survey library.
const DecryptionHint = "The LSMS data are encrypted. Request the passphrase from the data maintainers " +
	"and provide it to the survey library when prompted."

// ErrUpstreamDecryption is returned when the survey library cannot decrypt its assets.
type ErrUpstreamDecryption struct {
	ReplicationError
	Country string
}

// NewUpstreamDecryption creates a new ErrUpstreamDecryption.
func NewUpstreamDecryption(country string, cause error) *ErrUpstreamDecryption {
	return &ErrUpstreamDecryption{
		ReplicationError: ReplicationError{
			Code:       CodeUpstream,
			Message:    fmt.Sprintf("cannot decrypt survey assets for %s", country),
			Reason:     "the survey library rejected the passphrase",
			Suggestion: DecryptionHint,
			Cause:      cause,
		},
		Country: country,
	}
}

// ErrInvalidConfig is returned when a configuration value is malformed.
type ErrInvalidConfig struct {
	ReplicationError
	Key string
}

// NewInvalidConfig creates a new ErrInvalidConfig.
func NewInvalidConfig(key, reason string) *ErrInvalidConfig {
	return &ErrInvalidConfig{
		ReplicationError: ReplicationError{
			Code:       CodeValidation,
			Message:    "invalid configuration",
			Reason:     fmt.Sprintf("key '%s': %s", key, reason),
			Suggestion: "check risksharing.yaml or the RISKSHARING_* environment variables",
		},
		Key: key,
	}
}

// NewDatabaseUnavailable creates an error for an unreachable manifest database.
func NewDatabaseUnavailable(reason string) *ReplicationError {
	return &ReplicationError{
		Code:       CodeInternal,
		Message:    "manifest database unavailable",
		Reason:     reason,
		Suggestion: "check manifest.driver and manifest.dsn",
	}
}

// NewMigrationFailed creates an error for a failed manifest migration.
func NewMigrationFailed(name string, cause error) *ReplicationError {
	return &ReplicationError{
		Code:       CodeInternal,
		Message:    fmt.Sprintf("migration %s failed", name),
		Reason:     "the manifest schema could not be applied",
		Suggestion: "inspect the schema_migrations table",
		Cause:      cause,
	}
}
