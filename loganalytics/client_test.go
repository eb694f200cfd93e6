package loganalytics

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSharedKey = "c2VjcmV0LXNoYXJlZC1rZXk=" // base64("secret-shared-key")

func testConfig(endpoint string) ClientConfig {
	return ClientConfig{
		WorkspaceID: "test-workspace",
		SharedKey:   testSharedKey,
		TargetTable: "AzureADUsers",
		Endpoint:    endpoint,
	}
}

func TestConfigValidate(t *testing.T) {
	c := testConfig("")
	require.NoError(t, c.Validate())

	c = testConfig("")
	c.WorkspaceID = ""
	assert.Error(t, c.Validate())

	c = testConfig("")
	c.SharedKey = ""
	assert.Error(t, c.Validate())

	c = testConfig("")
	c.SharedKey = "%%% not base64 %%%"
	assert.Error(t, c.Validate())

	c = testConfig("")
	c.TargetTable = ""
	assert.Error(t, c.Validate())
}

func TestSubmitEmptyBatchIsNoOp(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	res, err := client.Submit(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowsWritten)
	assert.Equal(t, int32(0), requestCount.Load(), "empty batch must not reach the network")
}

func TestSubmitSuccess(t *testing.T) {
	key, err := base64.StdEncoding.DecodeString(testSharedKey)
	require.NoError(t, err)

	var gotBody []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/logs", r.URL.Path)
		assert.Equal(t, "2016-04-01", r.URL.Query().Get("api-version"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	records := []interface{}{
		map[string]interface{}{"UserPrincipalName": "a@contoso.com", "Nested": map[string]string{"k": "v"}},
		map[string]interface{}{"UserPrincipalName": "b@contoso.com"},
	}
	res, err := client.Submit(records)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsWritten)

	assert.Equal(t, "AzureADUsers", gotHeaders.Get("Log-Type"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))

	date := gotHeaders.Get("x-ms-date")
	_, err = time.Parse(http.TimeFormat, date)
	assert.NoError(t, err, "x-ms-date must be RFC1123 GMT")

	// The Authorization header must be the signature over the exact date and
	// payload length that were sent.
	want := BuildSignature("test-workspace", key, date, len(gotBody), "POST", "application/json", "/api/logs")
	assert.Equal(t, want, gotHeaders.Get("Authorization"))

	// Nested structures survive serialization.
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, map[string]interface{}{"k": "v"}, decoded[0]["Nested"])
}

func TestSubmitFailureNoRetry(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad signature"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Submit([]interface{}{map[string]string{"a": "b"}})
	require.Error(t, err)

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, http.StatusForbidden, submitErr.StatusCode)
	assert.Equal(t, "bad signature", submitErr.Body)
	assert.Equal(t, int32(1), requestCount.Load(), "a failed submission must not be retried")
}

func TestSubmitChunked(t *testing.T) {
	var requestCount atomic.Int32
	totalRows := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		body, _ := io.ReadAll(r.Body)
		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &decoded))
		totalRows += len(decoded)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	conf := testConfig(server.URL)
	conf.MaxBatchBytes = 64
	client, err := NewClient(conf)
	require.NoError(t, err)

	records := []interface{}{}
	for i := 0; i < 10; i++ {
		records = append(records, map[string]string{"UserId": "user-" + strconv.Itoa(i)})
	}
	res, err := client.Submit(records)
	require.NoError(t, err)
	assert.Equal(t, 10, res.RowsWritten)
	assert.Equal(t, 10, totalRows)
	assert.Greater(t, requestCount.Load(), int32(1), "a small byte cap must split the batch")
}
