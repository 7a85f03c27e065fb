package knograph

import "errors"

// Sentinel errors returned by the manager. Callers can match them with
// errors.Is to map failures onto transport-level responses.
var (
	// ErrDisabled is returned when the knowledge subsystem is switched off
	// for the requesting agent.
	ErrDisabled = errors.New("knograph: knowledge is disabled for this agent")

	// ErrNotFound is returned when a document, base, tag, or graph run does
	// not exist.
	ErrNotFound = errors.New("knograph: not found")

	// ErrAmbiguousBase is returned when an operation omits the base id and
	// the agent owns more than one knowledge base.
	ErrAmbiguousBase = errors.New("knograph: kbId is required")

	// ErrNotOwner is returned when a document exists but belongs to a
	// different agent.
	ErrNotOwner = errors.New("knograph: document not owned by agent")

	// ErrBaseMismatch is returned when the documents named in a graph query
	// span more than one knowledge base.
	ErrBaseMismatch = errors.New("knograph: documents belong to different knowledge bases")

	// ErrTooLarge is returned when an upload exceeds the configured file
	// size limit.
	ErrTooLarge = errors.New("knograph: file exceeds maximum size")

	// ErrLimitReached is returned when the agent is at its document quota.
	ErrLimitReached = errors.New("knograph: document limit reached")

	// ErrUnsupportedType is returned for content types with no registered
	// processor that are not preview-only.
	ErrUnsupportedType = errors.New("knograph: unsupported file type")

	// ErrFormatDisabled is returned when a format is supported but switched
	// off in configuration.
	ErrFormatDisabled = errors.New("knograph: file format is disabled")

	// ErrExtraction is returned when text extraction from an uploaded file
	// fails.
	ErrExtraction = errors.New("knograph: text extraction failed")

	// ErrNoContent is returned when extraction yields no usable text.
	ErrNoContent = errors.New("knograph: no text content extracted")

	// ErrDuplicateName is returned when creating or renaming a base would
	// collide with another base owned by the same agent.
	ErrDuplicateName = errors.New("knograph: base name already exists")

	// ErrDuplicate is returned when an uploaded file is byte-identical to a
	// document the agent already has.
	ErrDuplicate = errors.New("knograph: duplicate document")

	// ErrInvalid is returned for malformed input such as bad tag colors or
	// out-of-range settings values.
	ErrInvalid = errors.New("knograph: invalid input")
)
