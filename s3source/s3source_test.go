package s3source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/svanichkin/pngraw"
)

func testPNG(t *testing.T) ([]byte, []byte) {
	t.Helper()
	hdr := pngraw.ImageHeader{Width: 7, Height: 5, BitDepth: 8, ColorMode: pngraw.Truecolor}
	pix := make([]byte, hdr.RowStride()*int(hdr.Height))
	for i := range pix {
		pix[i] = byte(i * 13)
	}
	var buf bytes.Buffer
	require.Nil(t, pngraw.Encode(&buf, hdr, pix, &pngraw.EncodeOptions{Filter: pngraw.FilterAdaptive, ChunkSize: 16}))
	return buf.Bytes(), pix
}

// fakeS3 serves path-style HEAD and ranged GET requests for a single object.
func fakeS3(t *testing.T, bucket, key string, object []byte) (*httptest.Server, *int32) {
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+bucket+"/"+key {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			}
			return
		}
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(object)))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			atomic.AddInt32(&gets, 1)
			var start, end int
			_, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end)
			if err != nil || start > end || end >= len(object) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(object)))
			w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(object[start : end+1])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func testClient(t *testing.T, endpoint string) *s3.Client {
	t.Helper()
	client, err := NewClient(context.Background(), ClientConfig{
		Region:       "us-east-1",
		Endpoint:     endpoint,
		AccessKey:    "test",
		SecretKey:    "test",
		UsePathStyle: true,
	})
	require.Nil(t, err)
	return client
}

func TestDecodeFromS3(t *testing.T) {
	object, pix := testPNG(t)
	srv, gets := fakeS3(t, "images", "dir/apple.png", object)

	src, err := Open(context.Background(), testClient(t, srv.URL), "images", "dir/apple.png", nil)
	require.Nil(t, err)
	assert.Equal(t, int64(len(object)), src.Len())
	assert.Equal(t, "s3://images/dir/apple.png", src.String())

	img, err := pngraw.Decode(src, &pngraw.Options{VerifyChecksums: true})
	require.Nil(t, err)
	assert.Equal(t, pix, img.Pix)
	assert.Greater(t, atomic.LoadInt32(gets), int32(1))
}

func TestReadAtClamps(t *testing.T) {
	object := []byte("0123456789")
	srv, _ := fakeS3(t, "b", "k", object)
	src, err := Open(context.Background(), testClient(t, srv.URL), "b", "k", nil)
	require.Nil(t, err)

	b, err := src.ReadAt(2, 3)
	require.Nil(t, err)
	assert.Equal(t, []byte("234"), b)

	b, err = src.ReadAt(8, 5)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, []byte("89"), b)

	_, err = src.ReadAt(10, 1)
	assert.Equal(t, io.EOF, err)
}

func TestOpenMissingObject(t *testing.T) {
	srv, _ := fakeS3(t, "b", "k", []byte("x"))
	_, err := Open(context.Background(), testClient(t, srv.URL), "b", "nope", nil)
	assert.NotNil(t, err)
}

type flakyAPI struct {
	object   []byte
	failures int32
	calls    int32
	err      error
}

func (f *flakyAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{ContentLength: int64(len(f.object))}, nil
}

func (f *flakyAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	call := atomic.AddInt32(&f.calls, 1)
	if call <= f.failures {
		return nil, f.err
	}
	var start, end int
	if _, err := fmt.Sscanf(*params.Range, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.object[start : end+1]))}, nil
}

var fastRetry = &Options{Retries: 3, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestReadAtRetriesTransientErrors(t *testing.T) {
	api := &flakyAPI{
		object:   []byte("abcdef"),
		failures: 2,
		err:      io.ErrUnexpectedEOF,
	}
	src, err := Open(context.Background(), api, "b", "k", fastRetry)
	require.Nil(t, err)

	b, err := src.ReadAt(1, 3)
	require.Nil(t, err)
	assert.Equal(t, []byte("bcd"), b)
	assert.Equal(t, int32(3), api.calls)
}

func TestReadAtGivesUp(t *testing.T) {
	api := &flakyAPI{
		object:   []byte("abcdef"),
		failures: 100,
		err:      &smithy.GenericAPIError{Code: "InternalError"},
	}
	src, err := Open(context.Background(), api, "b", "k", fastRetry)
	require.Nil(t, err)

	_, err = src.ReadAt(0, 2)
	assert.NotNil(t, err)
	assert.Equal(t, int32(4), api.calls)
}

func TestReadAtDoesNotRetryMissingKey(t *testing.T) {
	api := &flakyAPI{
		object:   []byte("abcdef"),
		failures: 100,
		err:      &smithy.GenericAPIError{Code: "NoSuchKey"},
	}
	src, err := Open(context.Background(), api, "b", "k", fastRetry)
	require.Nil(t, err)

	_, err = src.ReadAt(0, 2)
	assert.NotNil(t, err)
	assert.Equal(t, int32(1), api.calls)
}

func TestTruncatedObjectIsTruncatedInput(t *testing.T) {
	object, _ := testPNG(t)
	api := &flakyAPI{object: object[:len(object)-20]}
	src, err := Open(context.Background(), api, "b", "k", fastRetry)
	require.Nil(t, err)

	_, err = pngraw.Decode(src, nil)
	assert.Equal(t, "truncated-input", pngraw.Kind(err))
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://images/a/b.png")
	require.Nil(t, err)
	assert.Equal(t, "images", bucket)
	assert.Equal(t, "a/b.png", key)

	for _, bad := range []string{"http://images/a.png", "s3://images", "s3:///a.png"} {
		_, _, err := ParseURL(bad)
		assert.NotNil(t, err, bad)
	}
	assert.True(t, IsURL("s3://x/y"))
	assert.False(t, IsURL(strings.TrimPrefix("s3://x/y", "s3:")))
}
