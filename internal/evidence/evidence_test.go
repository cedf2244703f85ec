package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-access-backend/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestDecodeImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	data, err := DecodeImage("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	data, err = DecodeImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	data, err = DecodeImage("  ")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = DecodeImage("data:image/png,notbase64")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = DecodeImage("%%%")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestLocalStore_Save(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC) }

	key, err := s.Save(context.Background(), "plate", pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "2025/03/14/plate_"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	written, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_Save(t *testing.T) {
	fp := &fakePutter{}
	s := &S3Store{client: fp, bucket: "captures", now: time.Now}

	key, err := s.Save(context.Background(), "face", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "captures", aws.ToString(fp.input.Bucket))
	assert.Equal(t, key, aws.ToString(fp.input.Key))
	assert.Equal(t, "image/png", aws.ToString(fp.input.ContentType))
	assert.Equal(t, pngHeader, fp.body)

	fp.err = errors.New("access denied")
	_, err = s.Save(context.Background(), "face", pngHeader)
	assert.ErrorContains(t, err, "access denied")
}

func TestNew_SelectsDriver(t *testing.T) {
	st, err := New(config.EvidenceConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, st)

	st, err = New(config.EvidenceConfig{Driver: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, st)

	st, err = New(config.EvidenceConfig{Driver: "s3", Bucket: "b", Region: "us-east-1", Endpoint: "minio:9000"})
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, st)

	_, err = New(config.EvidenceConfig{Driver: "s3"})
	assert.Error(t, err)

	_, err = New(config.EvidenceConfig{Driver: "ftp"})
	assert.Error(t, err)
}
