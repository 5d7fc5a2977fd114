package job

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/bwmarrin/snowflake"

	"pdfqa/src/fsutil"
)

const TaskTypeArchivePDF = "archive_pdf"

// ErrUploadReplaced means the file at the payload path no longer holds the
// bytes that were enqueued. The newer upload has its own job.
var ErrUploadReplaced = errors.New("upload was replaced before it was archived")

// ArchivePayload names an uploaded file to copy into object storage. SHA256 is
// the checksum taken at enqueue time; empty skips the check.
type ArchivePayload struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	SHA256   string `json:"sha256,omitempty"`
}

// ObjectStore is where archived uploads end up.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, r io.Reader, size int64, contentType string) error
}

type ArchiveTask struct {
	files   fsutil.FileStore
	objects ObjectStore
	bucket  string
	ids     *snowflake.Node
}

func NewArchiveTask(files fsutil.FileStore, objects ObjectStore, bucket string, ids *snowflake.Node) *ArchiveTask {
	return &ArchiveTask{
		files:   files,
		objects: objects,
		bucket:  bucket,
		ids:     ids,
	}
}

// HandleArchiveTask uploads the file under "<snowflake id>/<filename>" so two
// uploads with the same name never overwrite each other.
func (task *ArchiveTask) HandleArchiveTask(ctx context.Context, payload json.RawMessage) (string, error) {
	var p ArchivePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal archive payload: %w", err)
	}
	if p.Path == "" || p.Filename == "" {
		return "", errors.New("archive payload is missing path or filename")
	}

	data, err := task.files.ReadFile(p.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p.Path, err)
	}
	if p.SHA256 != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != p.SHA256 {
			return "", fmt.Errorf("%w: %s", ErrUploadReplaced, p.Path)
		}
	}

	key := path.Join(task.ids.Generate().String(), p.Filename)
	if err := task.objects.PutObject(ctx, task.bucket, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return "", err
	}

	return key, nil
}
