package importing

import "errors"

var (
	ErrInvalidImportRequest = errors.New("invalid import request")
	ErrSubmitImport         = errors.New("failed to submit import")
	ErrInvalidJobID         = errors.New("invalid job id")
	ErrGetImportJob         = errors.New("failed to get import job")
	ErrJobTimedOut          = errors.New("import timed out")
	ErrQueueStopped         = errors.New("import interrupted by shutdown")
)
