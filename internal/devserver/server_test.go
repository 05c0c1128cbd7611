package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/realtime"
)

var teacher = posts.Author{ID: "user-teacher", DisplayName: "Morgan"}

func seededServer(t *testing.T) (*Server, *httptest.Server, *channels.Channel) {
	t.Helper()
	s := New()
	ch := s.SeedChannel("Jazz I", "Fridays", []channels.Member{
		{UserID: teacher.ID, DisplayName: teacher.DisplayName, Role: channels.RoleTeacher},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, ch
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func dialStream(t *testing.T, ts *httptest.Server, channelID string, entity realtime.Entity) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/api/realtime?channel=" + channelID + "&entity=" + string(entity)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	// The server registers the subscription just after the handshake; give it
	// a moment so a broadcast fired immediately afterwards is not missed
	time.Sleep(50 * time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	var env realtime.Envelope
	require.NoError(t, json.Unmarshal(message, &env))
	return env
}

func TestCreatePostBroadcastsToStream(t *testing.T) {
	_, ts, ch := seededServer(t)
	conn := dialStream(t, ts, ch.ID, realtime.EntityPosts)

	var created posts.Post
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/channels/"+ch.ID+"/posts", teacher.ID,
		map[string]string{"content": "Recital dates are up"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, teacher.DisplayName, created.Author.DisplayName)

	env := readEnvelope(t, conn)
	assert.Equal(t, realtime.EntityPosts, env.Entity)
	assert.Equal(t, realtime.OpInsert, env.Op)

	var row realtime.PostRow
	require.NoError(t, json.Unmarshal(env.Row, &row))
	assert.Equal(t, created.ID, row.ID)
	assert.Equal(t, ch.ID, row.ChannelID)
}

func TestBroadcastScopedToChannelAndEntity(t *testing.T) {
	s, ts, ch := seededServer(t)
	other := s.SeedChannel("Tap II", "", nil)

	rightStream := dialStream(t, ts, ch.ID, realtime.EntityPosts)
	wrongChannel := dialStream(t, ts, other.ID, realtime.EntityPosts)
	wrongEntity := dialStream(t, ts, ch.ID, realtime.EntityComments)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/channels/"+ch.ID+"/posts", teacher.ID,
		map[string]string{"content": "hello"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	readEnvelope(t, rightStream)

	for _, conn := range []*websocket.Conn{wrongChannel, wrongEntity} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err, "out-of-scope streams must stay silent")
	}
}

func TestToggleReactionBroadcastsInsertThenDelete(t *testing.T) {
	s, ts, ch := seededServer(t)
	post := s.SeedPost(ch.ID, teacher, "React to this", time.Now().UTC())
	conn := dialStream(t, ts, ch.ID, realtime.EntityReactions)

	var result map[string]bool
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/posts/"+post.ID+"/reactions/toggle", teacher.ID, nil, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result["reacted"])
	assert.Equal(t, realtime.OpInsert, readEnvelope(t, conn).Op)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/posts/"+post.ID+"/reactions/toggle", teacher.ID, nil, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, result["reacted"])
	assert.Equal(t, realtime.OpDelete, readEnvelope(t, conn).Op)
}

func TestSeededRowsAreNotBroadcast(t *testing.T) {
	s, ts, ch := seededServer(t)
	conn := dialStream(t, ts, ch.ID, realtime.EntityPosts)

	s.SeedPost(ch.ID, teacher, "pre-existing", time.Now().UTC())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "seeding must not push events")
}

func TestRealtimeRejectsUnknownEntity(t *testing.T) {
	_, ts, ch := seededServer(t)
	resp, err := http.Get(ts.URL + "/api/realtime?channel=" + ch.ID + "&entity=channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContentValidationRejected(t *testing.T) {
	_, ts, ch := seededServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/channels/"+ch.ID+"/posts", teacher.ID,
		map[string]string{"content": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAndFetchBlob(t *testing.T) {
	_, ts, _ := seededServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/storage/upload?filename=notes.txt",
		strings.NewReader("stretch before class"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ref posts.Media
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ref))
	assert.Equal(t, "notes.txt", ref.Filename)
	assert.Equal(t, "file", ref.Kind)

	blobResp, err := http.Get(ts.URL + ref.URL)
	require.NoError(t, err)
	defer blobResp.Body.Close()
	data, err := io.ReadAll(blobResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "stretch before class", string(data))
}
