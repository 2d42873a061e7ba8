// Package auditexport archives entity timelines as newline-delimited JSON
// objects in the object store, for retention and offline analysis.
package auditexport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
	"github.com/ledgerline-labs/ledgerline-go/internal/repo"
)

// ObjectUploader is the slice of the MinIO client the exporter needs.
type ObjectUploader interface {
	PutObject(ctx context.Context, bucket, key string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// minioUploader adapts *minio.Client to ObjectUploader.
type minioUploader struct {
	client *minio.Client
}

func (u minioUploader) PutObject(ctx context.Context, bucket, key string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return u.client.PutObject(ctx, bucket, key, reader, size, opts)
}

type Exporter struct {
	store    repo.StateLogRepository
	uploader ObjectUploader
	bucket   string
	now      func() time.Time

	// PageSize bounds how many log rows are read per store round trip.
	PageSize int
}

func New(store repo.StateLogRepository, client *minio.Client, bucket string) (*Exporter, error) {
	return newExporter(store, minioUploader{client: client}, bucket)
}

func newExporter(store repo.StateLogRepository, uploader ObjectUploader, bucket string) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("state log repository is required")
	}
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &Exporter{
		store:    store,
		uploader: uploader,
		bucket:   strings.TrimSpace(bucket),
		now:      func() time.Time { return time.Now().UTC() },
		PageSize: 500,
	}, nil
}

// Result describes a written archive.
type Result struct {
	ObjectKey string    `json:"object_key"`
	Bucket    string    `json:"bucket"`
	Entries   int64     `json:"entries"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	WrittenAt time.Time `json:"written_at"`
}

type exportLine struct {
	ID              string          `json:"id"`
	EntityStateID   string          `json:"entity_state_id"`
	PipelineID      string          `json:"pipeline_id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	TransitionID    string          `json:"transition_id"`
	FromStateID     string          `json:"from_state_id"`
	ToStateID       string          `json:"to_state_id"`
	Actor           string          `json:"actor"`
	Comment         string          `json:"comment,omitempty"`
	Metadata        json.RawMessage `json:"metadata"`
	RequestID       string          `json:"request_id,omitempty"`
	IP              string          `json:"ip,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
	IntegritySHA256 string          `json:"integrity_sha256"`
}

// Export writes the full timeline of one entity, oldest entry last to match
// the read order, as one ndjson object. The object key embeds entity
// identity and the export timestamp so repeated exports never collide.
func (e *Exporter) Export(ctx context.Context, entityType, entityID string) (Result, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var entries int64
	offset := 0
	for {
		logs, err := e.store.ListStateLogs(ctx, entityType, entityID, repo.Page{Limit: e.PageSize, Offset: offset})
		if err != nil {
			return Result{}, fmt.Errorf("list state logs: %w", err)
		}
		if len(logs) == 0 {
			break
		}
		for _, log := range logs {
			if err := enc.Encode(toExportLine(log)); err != nil {
				return Result{}, fmt.Errorf("encode log %s: %w", log.ID, err)
			}
			entries++
		}
		if len(logs) < e.PageSize {
			break
		}
		offset += len(logs)
	}
	if entries == 0 {
		return Result{}, repo.ErrNotFound
	}

	writtenAt := e.now()
	key := fmt.Sprintf(
		"timelines/%s/%s/%s.ndjson",
		entityType, entityID, writtenAt.Format("20060102T150405Z"),
	)
	payload := buf.Bytes()
	sum := sha256.Sum256(payload)

	putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := e.uploader.PutObject(
		putCtx,
		e.bucket,
		key,
		bytes.NewReader(payload),
		int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"},
	)
	if err != nil {
		return Result{}, fmt.Errorf("put archive object: %w", err)
	}

	return Result{
		ObjectKey: key,
		Bucket:    e.bucket,
		Entries:   entries,
		SizeBytes: int64(len(payload)),
		SHA256:    hex.EncodeToString(sum[:]),
		WrittenAt: writtenAt,
	}, nil
}

func toExportLine(log domain.StateLog) exportLine {
	meta := log.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	ipStr := strings.TrimSpace(log.IP.String())
	if ipStr == "<nil>" {
		ipStr = ""
	}
	return exportLine{
		ID:              log.ID,
		EntityStateID:   log.EntityStateID,
		PipelineID:      log.PipelineID,
		EntityType:      log.EntityType,
		EntityID:        log.EntityID,
		TransitionID:    log.TransitionID,
		FromStateID:     log.FromStateID,
		ToStateID:       log.ToStateID,
		Actor:           log.Actor,
		Comment:         log.Comment,
		Metadata:        metaJSON,
		RequestID:       log.RequestID,
		IP:              ipStr,
		UserAgent:       log.UserAgent,
		OccurredAt:      log.OccurredAt.UTC(),
		IntegritySHA256: log.IntegritySHA256,
	}
}
