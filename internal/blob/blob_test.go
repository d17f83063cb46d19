package blob

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/markercast/engine/internal/api"
	"github.com/markercast/engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*Local)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*api.Client)(nil)
)

func TestLocal_UploadFileURIAndDelete(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root, "")
	require.NoError(t, err)

	uri, err := l.Upload(context.Background(), "campaigns/u1/1_marker", "image/png", strings.NewReader("data"))
	require.NoError(t, err)

	u, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)

	b, err := os.ReadFile(u.Path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	require.NoError(t, l.Delete(context.Background(), "campaigns/u1/1_marker"))
	_, err = os.Stat(u.Path)
	assert.True(t, os.IsNotExist(err))

	// deleting again is fine
	assert.NoError(t, l.Delete(context.Background(), "campaigns/u1/1_marker"))
}

func TestLocal_BaseURL(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "http://localhost:8080/media/")
	require.NoError(t, err)

	uri, err := l.Upload(context.Background(), "a/b", "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/a/b", uri)
}

func TestLocal_KeysCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root, "")
	require.NoError(t, err)

	p, err := l.pathFor("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, l.root))

	_, err = l.pathFor("")
	assert.Error(t, err)
}

func TestLocal_CancelledUploadLeavesNoFile(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Upload(ctx, "k", "", strings.NewReader("x"))
	require.Error(t, err)

	p, _ := l.pathFor("k")
	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr))
}

type fakeUploader struct {
	keys []string
	body string
	err  error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, *in.Key)
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &manager.UploadOutput{}, nil
}

type fakeDeleter struct{ deleted []string }

func (f *fakeDeleter) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func newFakeS3(cfg config.S3BlobConfig) (*S3, *fakeUploader, *fakeDeleter) {
	up := &fakeUploader{}
	del := &fakeDeleter{}
	return &S3{uploader: up, deleter: del, presigner: fakePresigner{}, cfg: cfg}, up, del
}

func TestS3_UploadPublicURL(t *testing.T) {
	s, up, _ := newFakeS3(config.S3BlobConfig{Region: "eu-west-1", Bucket: "ar", PublicRead: true})

	uri, err := s.Upload(context.Background(), "campaigns/u1/1 marker", "image/png", strings.NewReader("png"))
	require.NoError(t, err)

	assert.Equal(t, "https://ar.s3.eu-west-1.amazonaws.com/campaigns/u1/1%20marker", uri)
	assert.Equal(t, []string{"campaigns/u1/1 marker"}, up.keys)
	assert.Equal(t, "png", up.body)
}

func TestS3_UploadCustomEndpoint(t *testing.T) {
	s, _, _ := newFakeS3(config.S3BlobConfig{Bucket: "ar", Endpoint: "http://minio:9000", PublicRead: true})

	uri, err := s.Upload(context.Background(), "k", "", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/ar/k", uri)
}

func TestS3_UploadPresigned(t *testing.T) {
	s, _, _ := newFakeS3(config.S3BlobConfig{Bucket: "ar", PublicRead: false})

	uri, err := s.Upload(context.Background(), "k", "video/mp4", strings.NewReader("v"))
	require.NoError(t, err)
	assert.Contains(t, uri, "X-Amz-Signature")
}

func TestS3_UploadError(t *testing.T) {
	s, up, _ := newFakeS3(config.S3BlobConfig{Bucket: "ar"})
	up.err = errors.New("denied")

	_, err := s.Upload(context.Background(), "k", "", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestS3_Delete(t *testing.T) {
	s, _, del := newFakeS3(config.S3BlobConfig{Bucket: "ar"})
	require.NoError(t, s.Delete(context.Background(), "k1"))
	assert.Equal(t, []string{"k1"}, del.deleted)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), config.S3BlobConfig{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNew_Factory(t *testing.T) {
	ctx := context.Background()

	local, err := New(ctx, config.BlobConfig{Type: "local", Local: config.LocalBlobConfig{Root: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, local)

	remote, err := New(ctx, config.BlobConfig{Type: "remote", Remote: config.RemoteBlobConfig{ServerURL: "http://x"}})
	require.NoError(t, err)
	assert.IsType(t, &api.Client{}, remote)

	_, err = New(ctx, config.BlobConfig{Type: "ftp"})
	assert.Error(t, err)
}
