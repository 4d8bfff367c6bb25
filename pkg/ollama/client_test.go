package ollama

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	c, err := NewClientWithHTTP("http://ollama.test:11434/api/chat", httpClient)
	require.NoError(t, err)
	return c
}

func TestPredict(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://ollama.test:11434/api/chat",
		httpmock.NewStringResponder(http.StatusOK,
			`{"model":"llava","message":{"role":"assistant","content":"{\"objects\":[{\"label\":\"dog\",\"score\":0.8,\"box\":{\"x\":0.1,\"y\":0.2,\"w\":0.3,\"h\":0.4}}]}"},"done":true}`))

	preds, err := c.Predict(context.Background(), "llava", "find objects", []byte{0xff, 0xd8})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "dog", preds[0].Label)
	assert.InDelta(t, 0.4, preds[0].Box.H, 1e-9)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestPredictServerError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://ollama.test:11434/api/chat",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"model not found"}`))

	_, err := c.Predict(context.Background(), "missing", "find objects", []byte{1})
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://ollama.test:11434/api/tags",
		httpmock.NewStringResponder(http.StatusOK, `{"models":[{"name":"llava:latest"},{"name":"minicpm-v:8b"}]}`))

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llava:latest", "minicpm-v:8b"}, models)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost")
	assert.Error(t, err)
}

func TestModelOptions(t *testing.T) {
	assert.Contains(t, modelOptions("openbmb/minicpm-v4.5"), "num_ctx")
	assert.NotContains(t, modelOptions("llava"), "num_ctx")
}
