package auditexport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

type fakeLogRepo struct {
	logs []domain.StateLog
}

func (r *fakeLogRepo) AppendStateLog(ctx context.Context, log domain.StateLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func (r *fakeLogRepo) ListStateLogs(ctx context.Context, entityType, entityID string, page repo.Page) ([]domain.StateLog, error) {
	var matched []domain.StateLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].EntityType == entityType && r.logs[i].EntityID == entityID {
			matched = append(matched, r.logs[i])
		}
	}
	if page.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (r *fakeLogRepo) CountStateLogs(ctx context.Context, entityType, entityID string) (int64, error) {
	var n int64
	for _, log := range r.logs {
		if log.EntityType == entityType && log.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

type fakeUploader struct {
	bucket  string
	key     string
	payload []byte
	opts    minio.PutObjectOptions
	err     error
}

func (u *fakeUploader) PutObject(ctx context.Context, bucket, key string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if u.err != nil {
		return minio.UploadInfo{}, u.err
	}
	u.bucket = bucket
	u.key = key
	u.opts = opts
	buf := make([]byte, size)
	if _, err := reader.Read(buf); err != nil {
		return minio.UploadInfo{}, err
	}
	u.payload = buf
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func seedLogs(n int) *fakeLogRepo {
	repo := &fakeLogRepo{}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		repo.logs = append(repo.logs, domain.StateLog{
			ID:            fmt.Sprintf("log-%d", i+1),
			EntityStateID: "es-1",
			PipelineID:    "pl-1",
			EntityType:    "asset",
			EntityID:      "42",
			TransitionID:  "t-1",
			FromStateID:   "s-a",
			ToStateID:     "s-b",
			Actor:         "mia",
			OccurredAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	return repo
}

func TestExport(t *testing.T) {
	logs := seedLogs(3)
	uploader := &fakeUploader{}
	exporter, err := newExporter(logs, uploader, "workflow-archives")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	exporter.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	result, err := exporter.Export(context.Background(), "asset", "42")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Entries != 3 {
		t.Fatalf("expected 3 entries, got %d", result.Entries)
	}
	if result.Bucket != "workflow-archives" {
		t.Fatalf("wrong bucket: %s", result.Bucket)
	}
	if result.ObjectKey != "timelines/asset/42/20260302T000000Z.ndjson" {
		t.Fatalf("unexpected key: %s", result.ObjectKey)
	}
	if uploader.opts.ContentType != "application/x-ndjson" {
		t.Fatalf("wrong content type: %s", uploader.opts.ContentType)
	}
	if int64(len(uploader.payload)) != result.SizeBytes {
		t.Fatalf("size mismatch")
	}

	scanner := bufio.NewScanner(bytes.NewReader(uploader.payload))
	var lines []exportLine
	for scanner.Scan() {
		var line exportLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line not valid json: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 ndjson lines, got %d", len(lines))
	}
	// Read order is newest first.
	if lines[0].ID != "log-3" || lines[2].ID != "log-1" {
		t.Fatalf("unexpected order: %s .. %s", lines[0].ID, lines[2].ID)
	}
}

func TestExportPagesThroughLongTimelines(t *testing.T) {
	logs := seedLogs(7)
	uploader := &fakeUploader{}
	exporter, err := newExporter(logs, uploader, "workflow-archives")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	exporter.PageSize = 3

	result, err := exporter.Export(context.Background(), "asset", "42")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Entries != 7 {
		t.Fatalf("expected 7 entries, got %d", result.Entries)
	}
}

func TestExportEmptyTimeline(t *testing.T) {
	exporter, err := newExporter(&fakeLogRepo{}, &fakeUploader{}, "workflow-archives")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	_, err = exporter.Export(context.Background(), "asset", "missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportUploadFailure(t *testing.T) {
	exporter, err := newExporter(seedLogs(1), &fakeUploader{err: errors.New("minio down")}, "workflow-archives")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if _, err := exporter.Export(context.Background(), "asset", "42"); err == nil {
		t.Fatalf("expected upload error")
	}
}
