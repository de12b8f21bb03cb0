package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStatusRoundTripAndExpiry(t *testing.T) {
	s := NewMemoryStatus(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	start := now
	err := s.Set(context.Background(), "j1", Status{
		Status:   "success",
		Progress: 100,
		Start:    &start,
		Metadata: map[string]interface{}{"outputs": []string{"merged.pdf"}, "pages": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	st, ok, err := s.Get(context.Background(), "j1")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if st.Status != "success" || st.Progress != 100 || !st.Start.Equal(start) {
		t.Fatalf("status = %+v", st)
	}
	// metadata comes back JSON-shaped
	if outs, ok := st.Metadata["outputs"].([]interface{}); !ok || outs[0] != "merged.pdf" {
		t.Fatalf("metadata = %#v", st.Metadata)
	}
	if st.Metadata["pages"] != float64(3) {
		t.Fatalf("pages = %#v", st.Metadata["pages"])
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), "j1"); ok {
		t.Fatal("status should have expired")
	}
}

func TestRedisStatus(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	s, err := NewRedisStatus(url, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id := uuid.NewString()
	end := time.Now().UTC()
	if err := s.Set(context.Background(), id, Status{Status: "failed", Progress: 40, Message: "decode-failed: 0:a.pdf", End: &end}); err != nil {
		t.Fatal(err)
	}
	st, ok, err := s.Get(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if st.Status != "failed" || st.Progress != 40 || st.End == nil || !st.End.Equal(end) {
		t.Fatalf("status = %+v", st)
	}
	ttl, err := s.client.TTL(context.Background(), s.key(id)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
}

func TestHashFieldsRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	in := Status{Status: "success", Progress: 100, Message: "completed", Start: &start,
		Metadata: map[string]interface{}{"op": "merge", "delivered": 2}}
	f, err := in.hashFields()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f[fieldEnd]; ok {
		t.Fatal("nil end must not be written")
	}
	h := map[string]string{}
	for k, v := range f {
		h[k] = fmt.Sprint(v)
	}
	out := statusFromHash(h)
	if out.Status != in.Status || out.Progress != 100 || out.End != nil || !out.Start.Equal(start) {
		t.Fatalf("out = %+v", out)
	}
	if out.Metadata["op"] != "merge" || out.Metadata["delivered"] != float64(2) {
		t.Fatalf("metadata = %#v", out.Metadata)
	}
}
