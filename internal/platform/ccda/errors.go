package ccda

import "errors"

var (
	ErrUnknownVocabularyKey    = errors.New("ccda: unknown vocabulary key")
	ErrIncompleteHeader        = errors.New("ccda: incomplete header")
	ErrInvalidSection          = errors.New("ccda: invalid section")
	ErrEmptyDocument           = errors.New("ccda: document has no sections")
	ErrInvalidStatusTransition = errors.New("ccda: invalid status transition")
)
