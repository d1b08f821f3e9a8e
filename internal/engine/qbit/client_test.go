package qbit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

var testMagnet = "magnet:?xt=urn:btih:" + testHash + "&dn=Foo"

// fakeQbit is a minimal in-memory qBittorrent Web API.
type fakeQbit struct {
	mu sync.Mutex

	torrents   map[string]TorrentInfo
	files      []FileInfo
	addForms   []map[string]string
	priorities []string
	deleted    []string
	started    []string
	v5         bool
	failPrio   bool
	expireOnce bool
	logins     int
}

func newFakeQbit() *fakeQbit {
	return &fakeQbit{
		torrents: map[string]TorrentInfo{},
		files: []FileInfo{
			{Index: 0, Name: "Foo/a.mkv", Size: 100},
			{Index: 1, Name: "Foo/b.nfo", Size: 2},
			{Index: 2, Name: "Foo/c.srt", Size: 3},
		},
	}
}

func (f *fakeQbit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/v2/auth/login" {
		_ = r.ParseForm()
		f.logins++
		if r.Form.Get("password") != "secret" {
			_, _ = w.Write([]byte("Fails."))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
		_, _ = w.Write([]byte("Ok."))
		return
	}
	if f.expireOnce {
		f.expireOnce = false
		w.WriteHeader(http.StatusForbidden)
		return
	}

	switch r.URL.Path {
	case "/api/v2/app/version":
		_, _ = w.Write([]byte("v4.6.0"))
	case "/api/v2/torrents/info":
		var list []TorrentInfo
		want := r.URL.Query().Get("hashes")
		for hash, t := range f.torrents {
			if want == "" || want == hash {
				list = append(list, t)
			}
		}
		_ = json.NewEncoder(w).Encode(list)
	case "/api/v2/torrents/files":
		if _, ok := f.torrents[r.URL.Query().Get("hash")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(f.files)
	case "/api/v2/torrents/add":
		_ = r.ParseMultipartForm(1 << 20)
		form := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f.addForms = append(f.addForms, form)
		f.torrents[testHash] = TorrentInfo{
			Hash:     testHash,
			Name:     "Foo",
			State:    "stoppedDL",
			SavePath: form["savepath"],
			Tags:     form["tags"],
		}
		_, _ = w.Write([]byte("Ok."))
	case "/api/v2/torrents/filePrio":
		_ = r.ParseForm()
		if f.failPrio {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.priorities = append(f.priorities, r.Form.Get("id")+"="+r.Form.Get("priority"))
	case "/api/v2/torrents/resume", "/api/v2/torrents/pause":
		if f.v5 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		f.started = append(f.started, r.URL.Path+":"+r.Form.Get("hashes"))
	case "/api/v2/torrents/start", "/api/v2/torrents/stop":
		_ = r.ParseForm()
		f.started = append(f.started, r.URL.Path+":"+r.Form.Get("hashes"))
	case "/api/v2/torrents/delete":
		_ = r.ParseForm()
		hash := r.Form.Get("hashes")
		f.deleted = append(f.deleted, hash+":"+r.Form.Get("deleteFiles"))
		delete(f.torrents, hash)
	case "/api/v2/auth/logout":
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeQbit) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	c := NewClient(Options{
		Host:              host,
		Port:              port,
		Username:          "admin",
		Password:          "secret",
		RequestsPerSecond: 1000,
		Logger:            logrus.NewEntry(logger),
	})
	c.pollInterval = time.Millisecond
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLogin(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)

	require.NoError(t, c.Login(testCtx(t)))
	v, err := c.GetVersion(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "v4.6.0", v)
}

func TestLoginRejected(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)
	c.password = "wrong"

	err := c.Login(testCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.NotErrorIs(t, err, engine.ErrUnreachable)
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	srv.Close()

	c := NewClient(Options{Host: host, Port: port, Password: "secret"})
	_, err := c.ListTorrents(testCtx(t))
	require.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestConnect(t *testing.T) {
	fake := newFakeQbit()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	port, _ := strconv.Atoi(portStr)

	logger, hook := test.NewNullLogger()
	opts := Options{Host: host, Port: port, Password: "secret", Logger: logrus.NewEntry(logger)}

	c, err := Connect(testCtx(t), opts)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, fake.logins)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "v4.6.0", hook.LastEntry().Data["version"])

	opts.Password = "wrong"
	_, err = Connect(testCtx(t), opts)
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrUnreachable)
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	srv.Close()

	c, err := Connect(testCtx(t), Options{Host: host, Port: port, Password: "secret"})
	require.ErrorIs(t, err, engine.ErrUnreachable)
	assert.Nil(t, c)
}

func TestReloginOnExpiredSession(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)
	require.NoError(t, c.Login(testCtx(t)))

	fake.expireOnce = true
	_, err := c.ListTorrents(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 2, fake.logins)
}

func TestListTorrentsMapsStates(t *testing.T) {
	fake := newFakeQbit()
	fake.torrents["a"] = TorrentInfo{Hash: "a", Name: "A", State: "downloading", SavePath: "/downloads/A/", Tags: jobTag, Progress: 0.5, DLSpeed: 10}
	fake.torrents["b"] = TorrentInfo{Hash: "b", Name: "B", State: "stalledUP", SavePath: "/downloads/B"}
	fake.torrents["c"] = TorrentInfo{Hash: "c", Name: "C", State: "missingFiles", SavePath: "/downloads/C"}
	fake.torrents["d"] = TorrentInfo{Hash: "d", Name: "D", State: "metaDL", SavePath: "/tmp", Tags: previewTag}
	fake.torrents["e"] = TorrentInfo{Hash: "e", Name: "E", State: "uploading", SavePath: "/downloads/", ContentPath: "/downloads/E"}
	c := newTestClient(t, fake)

	list, err := c.ListTorrents(testCtx(t))
	require.NoError(t, err)
	require.Len(t, list, 4)

	byID := map[engine.ID]engine.Status{}
	for _, s := range list {
		byID[s.ID] = s
	}
	assert.Equal(t, engine.StateDownloading, byID["a"].State)
	assert.Equal(t, "/downloads", byID["a"].BasePath)
	assert.Equal(t, "/downloads/A", byID["a"].TargetDir)
	assert.Equal(t, engine.StateSeeding, byID["b"].State)
	assert.Equal(t, engine.StateError, byID["c"].State)
	assert.Equal(t, "missingFiles", byID["c"].Err)

	// Added outside torrent-deck: save_path is the base itself
	assert.Equal(t, "/downloads", byID["e"].BasePath)
	assert.Equal(t, "/downloads/E", byID["e"].TargetDir)
	assert.Equal(t, "/downloads/C", byID["c"].BasePath)
}

func TestMapState(t *testing.T) {
	cases := map[string]engine.State{
		"pausedDL":           engine.StatePaused,
		"stoppedUP":          engine.StatePaused,
		"queuedDL":           engine.StateDownloading,
		"forcedUP":           engine.StateSeeding,
		"checkingResumeData": engine.StateInitializing,
		"error":              engine.StateError,
		"somethingNew":       engine.StateInitializing,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapState(in), in)
	}
}

func TestAddTorrentAppliesSelection(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)

	h, err := c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo",
		OnlyFiles: []int{0, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.ID(testHash), h.ID)
	assert.Equal(t, "Foo", h.Name)

	require.Len(t, fake.addForms, 1)
	form := fake.addForms[0]
	assert.Equal(t, testMagnet, form["urls"])
	assert.Equal(t, "/downloads/Foo", form["savepath"])
	assert.Equal(t, "NoSubfolder", form["contentLayout"])
	assert.Equal(t, stopOnMetadata, form["stopCondition"])
	assert.Equal(t, jobTag, form["tags"])

	assert.Equal(t, []string{"1=0"}, fake.priorities)
	assert.Equal(t, []string{"/api/v2/torrents/resume:" + testHash}, fake.started)
	assert.Empty(t, fake.deleted)
}

func TestAddTorrentFallsBackToStartEndpoint(t *testing.T) {
	fake := newFakeQbit()
	fake.v5 = true
	c := newTestClient(t, fake)

	_, err := c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo",
		OnlyFiles: []int{0, 1, 2},
	})
	require.NoError(t, err)
	assert.Empty(t, fake.priorities)
	assert.Equal(t, []string{"/api/v2/torrents/start:" + testHash}, fake.started)
}

func TestAddTorrentDuplicatePath(t *testing.T) {
	fake := newFakeQbit()
	fake.torrents[testHash] = TorrentInfo{Hash: testHash, Name: "Foo", State: "uploading", SavePath: "/downloads/Foo", Tags: jobTag}
	c := newTestClient(t, fake)

	_, err := c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo-2",
		OnlyFiles: []int{0},
	})
	require.ErrorIs(t, err, engine.ErrDuplicatePath)

	_, err = c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/elsewhere/Foo",
		OnlyFiles: []int{0},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrDuplicatePath)
	assert.Empty(t, fake.addForms)
}

func TestAddTorrentDuplicateOfForeignTorrent(t *testing.T) {
	fake := newFakeQbit()
	fake.torrents[testHash] = TorrentInfo{
		Hash:        testHash,
		Name:        "Foo",
		State:       "uploading",
		SavePath:    "/downloads",
		ContentPath: "/downloads/Foo",
	}
	c := newTestClient(t, fake)

	list, err := c.ListTorrents(testCtx(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, engine.SameDestination(list, testHash, "/downloads"))

	_, err = c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo-2",
		OnlyFiles: []int{0},
	})
	require.ErrorIs(t, err, engine.ErrDuplicatePath)
	assert.Empty(t, fake.addForms)
}

func TestAddTorrentRollsBackOnPriorityFailure(t *testing.T) {
	fake := newFakeQbit()
	fake.failPrio = true
	c := newTestClient(t, fake)

	_, err := c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo",
		OnlyFiles: []int{0},
	})
	require.Error(t, err)
	assert.Equal(t, []string{testHash + ":true"}, fake.deleted)
	assert.Empty(t, fake.torrents)
}

func TestAddTorrentRejectsOutOfRangeSelection(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)

	_, err := c.AddTorrent(testCtx(t), engine.AddRequest{
		Source:    testMagnet,
		TargetDir: "/downloads/Foo",
		OnlyFiles: []int{7},
	})
	require.Error(t, err)
	assert.Len(t, fake.deleted, 1)
}

func TestResolveMetadataMagnetRemovesPreview(t *testing.T) {
	fake := newFakeQbit()
	c := newTestClient(t, fake)

	meta, err := c.ResolveMetadata(testCtx(t), testMagnet)
	require.NoError(t, err)
	assert.Equal(t, testHash, meta.InfoHash)
	assert.Equal(t, "Foo", meta.Name)
	require.Len(t, meta.Files, 3)
	assert.Equal(t, "Foo/a.mkv", meta.Files[0].Name)

	require.Len(t, fake.addForms, 1)
	assert.Equal(t, previewTag, fake.addForms[0]["tags"])
	assert.Equal(t, []string{testHash + ":true"}, fake.deleted)
}

func TestResolveMetadataKeepsExistingTorrent(t *testing.T) {
	fake := newFakeQbit()
	fake.torrents[testHash] = TorrentInfo{Hash: testHash, Name: "Foo", State: "uploading", SavePath: "/downloads/Foo"}
	c := newTestClient(t, fake)

	meta, err := c.ResolveMetadata(testCtx(t), testMagnet)
	require.NoError(t, err)
	assert.Len(t, meta.Files, 3)
	assert.Empty(t, fake.addForms)
	assert.Empty(t, fake.deleted)
}

func TestPauseResumeDelete(t *testing.T) {
	fake := newFakeQbit()
	fake.torrents["a"] = TorrentInfo{Hash: "a", State: "downloading"}
	c := newTestClient(t, fake)

	require.NoError(t, c.Pause(testCtx(t), "a"))
	require.NoError(t, c.Resume(testCtx(t), "a"))
	require.NoError(t, c.Delete(testCtx(t), "a"))

	assert.Equal(t, []string{"/api/v2/torrents/pause:a", "/api/v2/torrents/resume:a"}, fake.started)
	assert.Equal(t, []string{"a:true"}, fake.deleted)
	require.NoError(t, c.Close())
}
