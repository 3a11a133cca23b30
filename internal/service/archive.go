package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
)

// DownloadPrefix is the URL path under which stored archives are served.
const DownloadPrefix = "/download/"

// ArchiveService packages a settled job's produced files and stores them.
type ArchiveService struct {
	store     artifactstore.Store
	publicURL string
	metrics   *cfotel.Metrics
}

// NewArchiveService creates an ArchiveService. publicURL prefixes download
// URLs; empty yields server-relative URLs.
func NewArchiveService(store artifactstore.Store, publicURL string, metrics *cfotel.Metrics) *ArchiveService {
	return &ArchiveService{
		store:     store,
		publicURL: strings.TrimRight(publicURL, "/"),
		metrics:   metrics,
	}
}

// ArchiveKey returns the storage key of a job's archive.
func ArchiveKey(jobID, projectName string) string {
	return jobID + "/" + projectName + ".zip"
}

// Build zips every produced file of job under <projectName>/<path>, stores
// the archive, and attaches the reference to the job. Errors wrap
// generation.ErrArchive.
func (s *ArchiveService) Build(ctx context.Context, job *generation.Job) (generation.Artifact, error) {
	files := job.ProducedFiles()
	ctx, span := cfotel.StartArchiveSpan(ctx, job.ID(), len(files))
	defer span.End()

	project := job.Request().ProjectName
	data, err := zipFiles(project, files, job.Snapshot().CreatedAt)
	if err != nil {
		span.RecordError(err)
		return generation.Artifact{}, fmt.Errorf("%w: build: %w", generation.ErrArchive, err)
	}

	key := ArchiveKey(job.ID(), project)
	if err := s.store.Put(ctx, key, data); err != nil {
		span.RecordError(err)
		return generation.Artifact{}, fmt.Errorf("%w: store %s: %w", generation.ErrArchive, key, err)
	}

	art := generation.Artifact{
		Key:  key,
		URL:  s.publicURL + DownloadPrefix + key,
		Size: int64(len(data)),
	}
	if err := job.SetArchive(art); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.Warn("remove archive of cancelled job", "key", key, "error", delErr)
		}
		return generation.Artifact{}, err
	}
	s.metrics.ArchiveStored(ctx, art.Size)
	return art, nil
}

// zipFiles writes files sorted by path so identical inputs give identical archives.
func zipFiles(root string, files map[string]string, modified time.Time) ([]byte, error) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, p := range paths {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     root + "/" + p,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p, err)
		}
		if _, err := w.Write([]byte(files[p])); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
