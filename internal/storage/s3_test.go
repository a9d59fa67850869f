package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	key, bucket, contentType string
	body                     []byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key, f.bucket = *in.Key, *in.Bucket
	if in.ContentType != nil {
		f.contentType = *in.ContentType
	}
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	s := &S3Store{client: fake, bucket: "uploads"}
	id, err := s.Put(context.Background(), []byte("docx bytes"), "specs/brief.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if id != fake.key || !strings.HasSuffix(id, "/brief.docx") {
		t.Fatalf("unexpected key %q", id)
	}
	if fake.bucket != "uploads" || string(fake.body) != "docx bytes" || !strings.HasPrefix(fake.contentType, "application/vnd") {
		t.Fatalf("unexpected object: %+v", fake)
	}
}
