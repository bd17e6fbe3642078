package export

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cohort-copilot/core/storage/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newExportApp(t *testing.T, client *mocks.Client) *fiber.App {
	t.Helper()
	client.On("BucketExists", mock.Anything, "exports").Return(true, nil)

	feature := NewFeature(client, "exports", zap.NewNop())
	require.True(t, feature.IsEnabled())

	app := fiber.New()
	require.NoError(t, feature.Load(app))
	return app
}

func TestHandleList(t *testing.T) {
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Key: "queries/a.json", Size: 12, LastModified: time.Now()}
	close(ch)

	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "exports", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))
	app := newExportApp(t, client)

	resp, err := app.Test(httptest.NewRequest("GET", "/exports/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1), body["count"])
}

func TestHandleGet(t *testing.T) {
	client := new(mocks.Client)
	client.On("GetObject", mock.Anything, "exports", "queries/a.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"ok": true}`)), nil)
	app := newExportApp(t, client)

	resp, err := app.Test(httptest.NewRequest("GET", "/exports/queries/a.json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))
}

func TestHandleGetInvalidName(t *testing.T) {
	app := newExportApp(t, new(mocks.Client))

	resp, err := app.Test(httptest.NewRequest("GET", "/exports/elsewhere/a.json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleDelete(t *testing.T) {
	client := new(mocks.Client)
	client.On("RemoveObject", mock.Anything, "exports", "queries/a.json", mock.Anything).Return(nil)
	app := newExportApp(t, client)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/exports/queries/a.json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	client.AssertExpectations(t)
}
