package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalDeliver(t *testing.T) {
	l := NewLocal(t.TempDir())
	p, err := l.Deliver(context.Background(), "job1", "Split_Part_1.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(l.Dir, "job1", "Split_Part_1.pdf") {
		t.Fatalf("path = %s", p)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "%PDF" {
		t.Fatalf("read back %q, %v", b, err)
	}
	if _, err := l.Deliver(context.Background(), "job1", "..", nil); err == nil {
		t.Fatal("'..' must be rejected")
	}
}

func TestLocalCleanup(t *testing.T) {
	l := NewLocal(t.TempDir())
	if _, err := l.Deliver(context.Background(), "old", "merged.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Deliver(context.Background(), "new", "merged.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(l.JobDir("old"), past, past); err != nil {
		t.Fatal(err)
	}
	if n := l.Cleanup(time.Hour); n != 1 {
		t.Fatalf("removed %d", n)
	}
	if _, err := os.Stat(l.JobDir("old")); !os.IsNotExist(err) {
		t.Fatalf("old dir still present: %v", err)
	}
	if _, err := os.Stat(l.JobDir("new")); err != nil {
		t.Fatalf("new dir removed: %v", err)
	}
}

type fakeUploader struct {
	bucket, key, ctype string
	meta               map[string]string
	err                error
}

func (f *fakeUploader) Upload(ctx context.Context, bucket, key, contentType string, data []byte, meta map[string]string) (string, error) {
	f.bucket, f.key, f.ctype, f.meta = bucket, key, contentType, meta
	return "", f.err
}

func TestS3Deliver(t *testing.T) {
	up := &fakeUploader{}
	s := &S3{Client: up, Bucket: "results", Prefix: "assembly"}
	loc, err := s.Deliver(context.Background(), "j", "merged.pdf", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if up.key != "assembly/j/merged.pdf" || up.ctype != "application/pdf" || up.meta["name"] != "merged.pdf" {
		t.Fatalf("upload = %+v", up)
	}
	if loc != "s3://results/assembly/j/merged.pdf" {
		t.Fatalf("loc = %s", loc)
	}

	up.err = errors.New("boom")
	if _, err := s.Deliver(context.Background(), "j", "merged.pdf", nil); err == nil {
		t.Fatal("upload error must surface")
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	data := []byte("abc")
	loc, _ := m.Deliver(context.Background(), "j", "a.pdf", data)
	data[0] = 'X'
	got, ok := m.Get(loc)
	if !ok || string(got) != "abc" {
		t.Fatalf("memory sink aliases input: %q", got)
	}
	if locs := m.Locations(); len(locs) != 1 || locs[0] != loc {
		t.Fatalf("locations = %v", locs)
	}
}
