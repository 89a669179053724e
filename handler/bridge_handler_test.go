package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
)

func newBridgeRouter(archives ...*adapter.ChatArchiveAdapter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBridgeHandler(archives...)
	router := gin.New()
	router.POST("/bridge/conversations", h.HandlePushConversations)
	router.GET("/bridge/status", h.HandleArchiveStatus)
	return router
}

func pushConversations(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/conversations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestPushConversationsMessageList(t *testing.T) {
	archive := adapter.NewChatArchiveAdapter(types.SourceChatGPT)
	router := newBridgeRouter(archive)

	body := `{"source": "chatgpt", "conversations": [
      {"id": "c1", "title": "T", "update_time": 1000,
       "messages": [{"role": "user", "content": "hello there"}]}
    ]}`
	rec := pushConversations(t, router, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, archive.Len())
}

func TestPushConversationsHTMLSnapshot(t *testing.T) {
	archive := adapter.NewChatArchiveAdapter(types.SourceGemini)
	router := newBridgeRouter(archive)

	// The extension sends page snapshots as a JSON string under
	// "conversations".
	html := `<html><head><title>Gemini chat</title></head>
<body><div data-message-author-role="user">remember this</div></body></html>`
	payload, err := json.Marshal(map[string]any{
		"source":        "gemini",
		"conversations": html,
	})
	require.NoError(t, err)

	rec := pushConversations(t, router, string(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, archive.Len())
}

func TestPushConversationsUnknownSource(t *testing.T) {
	router := newBridgeRouter(adapter.NewChatArchiveAdapter(types.SourceChatGPT))

	rec := pushConversations(t, router, `{"source": "icq", "conversations": []}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushConversationsUnparseablePayload(t *testing.T) {
	router := newBridgeRouter(adapter.NewChatArchiveAdapter(types.SourceChatGPT))

	rec := pushConversations(t, router, `{"source": "chatgpt", "conversations": {"bogus": true}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestArchiveStatus(t *testing.T) {
	archive := adapter.NewChatArchiveAdapter(types.SourceChatGPT)
	router := newBridgeRouter(archive)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bridge/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.DataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
}
