// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netboost/netboost/internal/cache"
	"github.com/netboost/netboost/internal/config"
	"github.com/netboost/netboost/internal/tasks"
)

type fixture struct {
	server *httptest.Server
	store  *tasks.Store
	cache  cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := tasks.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.RateLimitEnabled = false
	c := cache.NewMemory(0)

	srv := httptest.NewServer(NewServer(&cfg, store, c, nil).Routes())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, store: store, cache: c}
}

type form struct {
	fields map[string]string
	file   string
}

func (f *fixture) submit(t *testing.T, fm form) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fm.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fm.file != "" {
		part, err := mw.CreateFormFile("network", "network.sif")
		require.NoError(t, err)
		_, err = io.WriteString(part, fm.file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/nbgwas/tasks", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func decode(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close() //nolint:errcheck
	var doc map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	return doc
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.server.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Network Boosted")
}

func TestSubmitWithNetworkFile(t *testing.T) {
	f := newFixture(t)

	res := f.submit(t, form{
		fields: map[string]string{"seeds": "TP53,BRCA1", "alpha": "0.3"},
		file:   "TP53\tMDM2\t1.0\n",
	})
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	loc := res.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/nbgwas/tasks/"), loc)

	doc := decode(t, res)
	id := doc["id"].(string)
	assert.Equal(t, "/nbgwas/tasks/"+id, loc)

	task, err := f.store.Find(id)
	require.NoError(t, err)
	assert.Equal(t, tasks.SubmittedState, task.State)
	assert.Equal(t, 0.3, task.Params.Alpha)
	assert.Equal(t, []string{"TP53", "BRCA1"}, task.Params.Seeds)

	rc, err := f.store.OpenNetwork(task)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	sif, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "TP53\tMDM2\t1.0\n", string(sif))
}

func TestSubmitWithColumnAndNDEx(t *testing.T) {
	f := newFixture(t)

	res := f.submit(t, form{fields: map[string]string{"seeds": "A", "column": "TCGA_GBM_Correlation"}})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	id := decode(t, res)["id"].(string)
	task, err := f.store.Find(id)
	require.NoError(t, err)
	assert.Equal(t, "TCGA_GBM_Correlation", task.Params.Column)
	assert.Equal(t, "biggim", task.Params.Source())

	res = f.submit(t, form{fields: map[string]string{"seeds": "A", "ndex": "8a2d7ee9-1513-11e9-bb6a-0ac135e8bacf"}})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	id = decode(t, res)["id"].(string)
	task, err = f.store.Find(id)
	require.NoError(t, err)
	assert.Equal(t, "ndex", task.Params.Source())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		form form
		want string
	}{
		{"missing seeds", form{fields: map[string]string{"column": "X"}}, "seeds"},
		{"no network source", form{fields: map[string]string{"seeds": "A"}}, "one of network, column or ndex"},
		{"bad alpha", form{fields: map[string]string{"seeds": "A", "column": "X", "alpha": "1.5"}}, "alpha"},
		{"alpha not a number", form{fields: map[string]string{"seeds": "A", "column": "X", "alpha": "lots"}}, "alpha"},
		{"ndex id too long", form{fields: map[string]string{"seeds": "A", "ndex": strings.Repeat("a", 41)}}, "40 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.submit(t, tt.form)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			doc := decode(t, res)
			assert.Contains(t, doc["message"], tt.want)
		})
	}
}

func TestStatusLifecycle(t *testing.T) {
	f := newFixture(t)

	task, err := f.store.Create(tasks.Params{Alpha: 0.5, Seeds: []string{"A"}, RemoteIP: "127.0.0.1"})
	require.NoError(t, err)
	url := f.server.URL + "/nbgwas/tasks/" + task.ID

	res, err := http.Get(url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "submitted", decode(t, res)["status"])

	require.NoError(t, f.store.Move(task, tasks.ProcessingState, nil))
	res, err = http.Get(url)
	require.NoError(t, err)
	assert.Equal(t, "processing", decode(t, res)["status"])

	require.NoError(t, f.store.Move(task, tasks.DoneState, nil))
	require.NoError(t, f.store.SaveResult(task, map[string]float64{"A": 0.9}))

	res, err = http.Get(url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode(t, res)
	assert.Equal(t, "done", doc["status"])
	result := doc["result"].(map[string]any)
	assert.Equal(t, 0.9, result["A"])
}

func TestStatusFailedTask(t *testing.T) {
	f := newFixture(t)

	task, err := f.store.Create(tasks.Params{Alpha: 0.5, Seeds: []string{"A"}, RemoteIP: "127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, f.store.Move(task, tasks.ProcessingState, nil))
	require.NoError(t, f.store.Move(task, tasks.DoneState, errors.New("no seeds found in network")))

	res, err := http.Get(f.server.URL + "/nbgwas/tasks/" + task.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	doc := decode(t, res)
	assert.Equal(t, "error", doc["status"])
	assert.Equal(t, "no seeds found in network", doc["message"])
}

func TestStatusDoneWithoutResultIs500(t *testing.T) {
	f := newFixture(t)

	task, err := f.store.Create(tasks.Params{Alpha: 0.5, Seeds: []string{"A"}, RemoteIP: "127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, f.store.Move(task, tasks.DoneState, nil))

	res, err := http.Get(f.server.URL + "/nbgwas/tasks/" + task.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, decode(t, res)["message"], "without a result")
}

func TestStatusUnknownTaskIs410(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.server.URL + "/nbgwas/tasks/ffffffff-ffff-ffff-ffff-ffffffffffff")
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, res.StatusCode)
	assert.Equal(t, "notfound", decode(t, res)["status"])
}

func TestCollectionAndDelete(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.server.URL + "/nbgwas/tasks")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	res.Body.Close() //nolint:errcheck

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/nbgwas/tasks/any-id", nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	res.Body.Close() //nolint:errcheck
}

func TestResultServedFromCache(t *testing.T) {
	f := newFixture(t)

	task, err := f.store.Create(tasks.Params{Alpha: 0.5, Seeds: []string{"A"}, RemoteIP: "127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, f.store.Move(task, tasks.DoneState, nil))
	require.NoError(t, f.store.SaveResult(task, map[string]float64{"A": 0.9}))

	url := f.server.URL + "/nbgwas/tasks/" + task.ID

	res, err := http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close() //nolint:errcheck

	// remove the result file; the second poll must come from the cache
	require.NoError(t, os.Remove(filepath.Join(f.store.Dir(task), tasks.ResultFile)))

	res, err = http.Get(url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode(t, res)
	assert.Equal(t, "done", doc["status"])
}

func TestRequestIDHeaderSet(t *testing.T) {
	f := newFixture(t)

	res, err := http.Get(f.server.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close() //nolint:errcheck
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestUploadLimit(t *testing.T) {
	store, err := tasks.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.RateLimitEnabled = false
	cfg.MaxUploadBytes = 1024

	srv := httptest.NewServer(NewServer(&cfg, store, cache.NewMemory(0), nil).Routes())
	defer srv.Close()

	f := &fixture{server: srv, store: store}
	res := f.submit(t, form{
		fields: map[string]string{"seeds": "A"},
		file:   strings.Repeat("G1\tG2\t1.0\n", 2000),
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close() //nolint:errcheck
}
