package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrAsset           = errors.New("asset error")
	ErrAlignment       = errors.New("alignment error")
	ErrNoWordsDetected = errors.New("no words detected")
	ErrBackgroundLoad  = errors.New("background load error")
	ErrEncode          = errors.New("encode error")
	ErrEncodeTimeout   = errors.New("encode timeout")
)

// StageError attributes a pipeline failure to the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause walk through the stage wrapper.
func (e *StageError) Cause() error {
	return e.Err
}

// AtStage wraps err with the stage name. A nil err stays nil.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
