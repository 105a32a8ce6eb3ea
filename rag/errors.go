package rag

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindPipelineFailure
	KindUpstreamFailure
	KindStateError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindPipelineFailure:
		return "pipeline_failure"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindStateError:
		return "state_error"
	default:
		return "unknown"
	}
}

// Error is a classified failure. The package exposes one sentinel per failure;
// callers match them with errors.Is and read the kind with KindOf.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidFileType    = &Error{Kind: KindInvalidInput, Message: "please upload a valid PDF file"}
	ErrUnreadableDocument = &Error{Kind: KindInvalidInput, Message: "unable to read PDF"}
	ErrEmptyDocument      = &Error{Kind: KindInvalidInput, Message: "no text in PDF"}
	ErrEmptyQuestion      = &Error{Kind: KindInvalidInput, Message: "question cannot be empty"}
	ErrChunkingFailed     = &Error{Kind: KindPipelineFailure, Message: "failed to create chunks"}
	ErrIndexFailed        = &Error{Kind: KindPipelineFailure, Message: "failed to build index"}
	ErrEmbeddingFailure   = &Error{Kind: KindUpstreamFailure, Message: "embedding failed"}
	ErrRetrievalFailure   = &Error{Kind: KindUpstreamFailure, Message: "retrieval failed"}
	ErrGenerationFailure  = &Error{Kind: KindUpstreamFailure, Message: "generation failed"}
	ErrNoDocumentLoaded   = &Error{Kind: KindStateError, Message: "no PDF loaded"}
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func wrap(sentinel *Error, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
