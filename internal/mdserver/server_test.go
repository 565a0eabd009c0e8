package mdserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mdPath string) *Server {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	return New(mdPath, 0, log)
}

func TestHandleFilesServesWithinBase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("fake-png"), 0o644))

	s := newTestServer(t, filepath.Join(dir, "doc.md"))

	req := httptest.NewRequest(http.MethodGet, "/files/image.png", nil)
	rec := httptest.NewRecorder()
	s.handleFiles(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake-png", rec.Body.String())
}

func TestHandleFilesRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# hi\n"), 0o644))

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))

	s := newTestServer(t, filepath.Join(dir, "doc.md"))

	req := httptest.NewRequest(http.MethodGet, "/files/"+"..%2F"+filepath.Base(outside)+"%2Fsecret.txt", nil)
	rec := httptest.NewRecorder()
	s.handleFiles(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleFilesMissingFileIs404(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# hi\n"), 0o644))

	s := newTestServer(t, filepath.Join(dir, "doc.md"))

	req := httptest.NewRequest(http.MethodGet, "/files/does-not-exist.png", nil)
	rec := httptest.NewRecorder()
	s.handleFiles(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderCurrentAndBroadcastMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# title\n\nbody\n"), 0o644))

	s := newTestServer(t, path)
	require.NoError(t, s.renderCurrent())

	msg := s.currentUpdateMessage()
	assert.Equal(t, TypeUpdateContent, msg.Type)
	payload, ok := msg.Payload.(UpdateContentPayload)
	require.True(t, ok)
	assert.Contains(t, payload.HTML, "<h1")
}
