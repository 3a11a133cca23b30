package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/service"
)

func settledJob(t *testing.T, files map[string]string, failed ...string) *generation.Job {
	t.Helper()
	var units []generation.WorkUnit
	for p := range files {
		units = append(units, generation.WorkUnit{ID: p, Path: p})
	}
	for _, p := range failed {
		units = append(units, generation.WorkUnit{ID: p, Path: p})
	}
	req := goRequest("quad", 1).Normalize(generation.Limits{MaxWorkers: 4, DefaultModel: "m"})
	req.ProjectName = "demo"
	job := generation.NewJob("job-1", req, units)
	if err := job.Start(); err != nil {
		t.Fatal(err)
	}
	for i, u := range job.Snapshot().Units {
		job.BeginUnit(i)
		if content, ok := files[u.Path]; ok {
			_ = job.SucceedUnit(i, content)
		} else {
			_ = job.FailUnit(i, "timeout")
		}
	}
	return job
}

func TestArchiveBuild(t *testing.T) {
	store := newMemStore()
	a := service.NewArchiveService(store, "https://gen.example.com/", nil)
	job := settledJob(t, map[string]string{"z.go": "z", "a/b.go": "b", "m.go": "m"}, "bad.go")

	art, err := a.Build(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if art.Key != "job-1/demo.zip" {
		t.Errorf("key = %q", art.Key)
	}
	if art.URL != "https://gen.example.com/download/job-1/demo.zip" {
		t.Errorf("url = %q", art.URL)
	}
	data, _ := store.Get(context.Background(), art.Key)
	if art.Size != int64(len(data)) {
		t.Errorf("size = %d, stored %d", art.Size, len(data))
	}
	got := strings.Join(zipEntries(t, data), ",")
	if got != "demo/a/b.go,demo/m.go,demo/z.go" {
		t.Errorf("entries = %s", got)
	}
	if snap := job.Snapshot(); snap.Archive == nil || snap.Archive.Key != art.Key {
		t.Errorf("archive not attached: %+v", snap.Archive)
	}
}

func TestArchiveStoreFailure(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("bucket gone")
	a := service.NewArchiveService(store, "", nil)

	_, err := a.Build(context.Background(), settledJob(t, map[string]string{"a.go": "a"}))
	if !errors.Is(err, generation.ErrArchive) {
		t.Fatalf("err = %v, want ErrArchive", err)
	}
	if !strings.Contains(err.Error(), "bucket gone") {
		t.Errorf("err = %v, want cause", err)
	}
}

func TestArchiveRefusedForCancelledJob(t *testing.T) {
	store := newMemStore()
	a := service.NewArchiveService(store, "", nil)
	job := settledJob(t, map[string]string{"a.go": "a"})
	job.Cancel()

	if _, err := a.Build(context.Background(), job); err == nil {
		t.Fatal("archive built for a cancelled job")
	}
	if keys := store.keys(); len(keys) != 0 {
		t.Errorf("stored archive not removed: %v", keys)
	}
}

func TestArchiveRelativeURL(t *testing.T) {
	a := service.NewArchiveService(newMemStore(), "", nil)
	art, err := a.Build(context.Background(), settledJob(t, map[string]string{"a.go": "a"}))
	if err != nil {
		t.Fatal(err)
	}
	if art.URL != "/download/job-1/demo.zip" {
		t.Errorf("url = %q", art.URL)
	}
}
