package importing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

const DefaultMaxFileSize = 10 << 20

type SubmitImportInput struct {
	TableType      string
	FileName       string
	Data           []byte
	IdempotencyKey string
	AdditionalData map[string]string
}

type SubmitImportOutput struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type SubmitImport interface {
	Execute(ctx context.Context, in SubmitImportInput) (SubmitImportOutput, error)
}

type jobEnqueuer interface {
	AddJob(ctx context.Context, in NewJob) (string, bool, error)
	Get(id string) (domain.JobView, error)
}

// fileInspector rejects files that cannot be parsed for a table type:
// unsupported formats, corrupt workbooks, missing headers or columns.
type fileInspector interface {
	Inspect(tableType domain.TableType, fileName string, data []byte) error
}

type submitImport struct {
	queue       jobEnqueuer
	files       fileInspector
	maxFileSize int64
}

func NewSubmitImport(queue jobEnqueuer, files fileInspector, maxFileSize int64) SubmitImport {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &submitImport{queue: queue, files: files, maxFileSize: maxFileSize}
}

func (uc *submitImport) Execute(ctx context.Context, in SubmitImportInput) (SubmitImportOutput, error) {
	tableType, err := domain.ParseTableType(in.TableType)
	if err != nil {
		return SubmitImportOutput{}, err
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		return SubmitImportOutput{}, fmt.Errorf("%w: file name is required", ErrInvalidImportRequest)
	}
	if len(in.Data) == 0 {
		return SubmitImportOutput{}, domain.ErrNoData
	}
	if int64(len(in.Data)) > uc.maxFileSize {
		return SubmitImportOutput{}, fmt.Errorf("%w: %d bytes, limit %d", domain.ErrFileTooLarge, len(in.Data), uc.maxFileSize)
	}
	if err := uc.files.Inspect(tableType, fileName, in.Data); err != nil {
		return SubmitImportOutput{}, err
	}

	key := DefaultIdempotencyKey(tableType, fileName, in.Data)
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		key = CallerIdempotencyKey(tableType, fileName, k)
	}

	jobID, duplicate, err := uc.queue.AddJob(ctx, NewJob{
		IdempotencyKey: key,
		TableType:      tableType,
		FileName:       fileName,
		AdditionalData: in.AdditionalData,
		Payload:        in.Data,
	})
	if err != nil {
		return SubmitImportOutput{}, fmt.Errorf("%w: %v", ErrSubmitImport, err)
	}

	status := string(domain.StatusQueued)
	if duplicate {
		if view, err := uc.queue.Get(jobID); err == nil {
			status = string(view.Status)
		} else if !errors.Is(err, domain.ErrJobNotFound) {
			return SubmitImportOutput{}, fmt.Errorf("%w: %v", ErrSubmitImport, err)
		}
	}

	return SubmitImportOutput{JobID: jobID, Status: status, Duplicate: duplicate}, nil
}

// DefaultIdempotencyKey derives a key from the table type, file name and
// content so that re-uploading the same file while it is still in flight
// returns the existing job.
func DefaultIdempotencyKey(tableType domain.TableType, fileName string, data []byte) string {
	return fmt.Sprintf("%s:%s:%016x", tableType, fileName, xxh3.Hash(data))
}

// CallerIdempotencyKey scopes a caller-chosen key to the table type and file
// name, so the same key reused for another table or file starts a new job.
func CallerIdempotencyKey(tableType domain.TableType, fileName, key string) string {
	return fmt.Sprintf("%s:%s:key=%s", tableType, fileName, key)
}
