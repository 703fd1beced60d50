package archive

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
)

func TestObjectKey(t *testing.T) {
	asset := &domain.UploadedAsset{
		ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		Path:       "/var/uploads/0f8fad5b-d9cb-469f-a165-70867728950e.webp",
		UploadedAt: time.Date(2026, 2, 3, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)),
	}
	assert.Equal(t, "analyses/2026/02/04/0f8fad5b-d9cb-469f-a165-70867728950e.webp", ObjectKey(asset))
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), Config{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}

func TestNewS3ArchiverWithStaticCredentials(t *testing.T) {
	a, err := NewS3Archiver(context.Background(), Config{
		Bucket:          "analyses",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "analyses", a.bucket)
}

func TestMetadataValue(t *testing.T) {
	assert.Equal(t, "dog.jpg", metadataValue("dog.jpg"))

	encoded := metadataValue("köpek.jpg")
	for _, r := range encoded {
		assert.Less(t, r, rune(128), "metadata must be ASCII")
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, "köpek.jpg", decoded)
}

func TestArchiveUploadsStagedFile(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\nstaged image bytes")
	path := filepath.Join(t.TempDir(), "0f8fad5b-d9cb-469f-a165-70867728950e.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	type upload struct {
		method, path, contentType, filename string
		body                                []byte
	}
	got := make(chan upload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case got <- upload{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			filename:    r.Header.Get("X-Amz-Meta-Original-Filename"),
			body:        body,
		}:
		default:
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := NewS3Archiver(context.Background(), Config{
		Bucket:          "analyses",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	}, nil)
	require.NoError(t, err)

	asset := &domain.UploadedAsset{
		ID:               "0f8fad5b-d9cb-469f-a165-70867728950e",
		Path:             path,
		OriginalFilename: "köpek.jpg",
		Size:             int64(len(data)),
		MimeType:         "image/png",
		UploadedAt:       time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
	}
	key, err := a.Archive(context.Background(), asset)
	require.NoError(t, err)
	assert.Equal(t, "analyses/2026/02/03/0f8fad5b-d9cb-469f-a165-70867728950e.png", key)

	req := <-got
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/analyses/"+key, req.path)
	assert.Equal(t, "image/png", req.contentType)
	assert.Contains(t, string(req.body), string(data))

	decoded, err := new(mime.WordDecoder).DecodeHeader(req.filename)
	require.NoError(t, err)
	assert.Equal(t, "köpek.jpg", decoded)
}
