package storage

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

type rejectAll struct{}

func (rejectAll) Scan(io.Reader) error { return ErrInfected }

func TestAttachmentsSaveAndRemove(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	a := NewAttachments(local, nil, 1024, nil)
	ctx := context.Background()

	ref, err := a.Save(ctx, "user-1", "resume", fileHeader(t, "CV.PDF", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, "CV.PDF", ref.Filename)
	assert.Equal(t, int64(8), ref.Size)
	assert.Contains(t, ref.Key, "applications/user-1/resume/")
	assert.Contains(t, ref.Key, ".pdf")

	r, err := local.Open(ref.Key)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "%PDF-1.4", string(data))

	a.Remove(ctx, ref)
	_, err = local.Open(ref.Key)
	assert.Error(t, err)
	assert.NoError(t, local.Delete(ctx, ref.Key))
}

func TestAttachmentsRejects(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	small := NewAttachments(local, nil, 4, nil)
	_, err = small.Save(ctx, "u", "resume", fileHeader(t, "cv.pdf", []byte("too large")))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = small.Save(ctx, "u", "resume", fileHeader(t, "cv.pdf", nil))
	assert.ErrorIs(t, err, ErrEmptyFile)

	infected := NewAttachments(local, rejectAll{}, 1024, nil)
	_, err = infected.Save(ctx, "u", "resume", fileHeader(t, "cv.pdf", []byte("x")))
	assert.ErrorIs(t, err, ErrInfected)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	err = local.Put(context.Background(), "../escape", bytes.NewReader([]byte("x")), 1, "text/plain")
	assert.Error(t, err)
}
