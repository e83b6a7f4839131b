package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebox/recipebox/errors"
	"github.com/recipebox/recipebox/internal/httpclient"
	"github.com/recipebox/recipebox/pipeline"
	"github.com/recipebox/recipebox/progress"
)

type staticIDs string

func (s staticIDs) ClientID(context.Context) string { return string(s) }

// uploadServer answers every POST with status and body. HEAD answers headStatus.
type uploadServer struct {
	*httptest.Server
	posts   atomic.Int32
	lastReq atomic.Pointer[http.Request]
	image   atomic.Pointer[[]byte]
}

func newUploadServer(t *testing.T, status int, body pipeline.Response, headStatus int) *uploadServer {
	t.Helper()
	us := &uploadServer{}
	us.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(headStatus)
			return
		}
		us.posts.Add(1)
		if f, _, err := r.FormFile("image"); err == nil {
			data, _ := io.ReadAll(f)
			us.image.Store(&data)
		}
		us.lastReq.Store(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(us.Close)
	return us
}

func newTestSubmitter(t *testing.T, us *uploadServer, opts SubmitterOptions) (*Submitter, *recorder) {
	t.Helper()
	bus := progress.NewBus()
	rec := record(bus)
	opts.BaseURL = us.URL
	return NewSubmitter(opts, httpclient.Wrap(us.Client()), staticIDs("client_abc"), bus, nil), rec
}

func TestSubmitDeliveredPublishesNothingMore(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{Message: pipeline.MsgCreated, RealTimeUpdatesDelivered: true}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})

	out, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, out.Status)
	assert.Empty(t, out.Replayed)
	assert.Equal(t, []string{"uploading:processing"}, rec.trail())
}

func TestSubmitReplaysSuccessWhenUndelivered(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{Message: pipeline.MsgCreated}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})

	out, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.NoError(t, err)

	assert.Len(t, out.Replayed, 3)
	assert.Equal(t, []string{
		"uploading:processing",
		"verifying:success",
		"extracting:success",
		"saving:success",
	}, rec.trail())
}

func TestSubmitReplaysNotARecipe(t *testing.T) {
	us := newUploadServer(t, http.StatusBadRequest, pipeline.Response{Message: pipeline.MsgNotARecipe}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})

	out, err := s.Submit(context.Background(), "cat.png", testPNG(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotARecipe))
	assert.Contains(t, err.Error(), pipeline.MsgNotARecipe)
	require.NotNil(t, out)
	assert.Equal(t, http.StatusBadRequest, out.Status)

	assert.Equal(t, []string{"uploading:processing", "verifying:error"}, rec.trail())
}

func TestSubmitPrefersStructuredFailedStage(t *testing.T) {
	us := newUploadServer(t, http.StatusInternalServerError, pipeline.Response{
		Message:     "Something unexpected",
		FailedStage: progress.StageSaving,
	}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})

	_, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstream))

	assert.Equal(t, []string{
		"uploading:processing",
		"verifying:success",
		"extracting:success",
		"saving:error",
	}, rec.trail())
}

func TestSubmitDeliveredFailureReplaysNothing(t *testing.T) {
	us := newUploadServer(t, http.StatusInternalServerError, pipeline.Response{
		Message:                  pipeline.MsgExtractFailed,
		FailedStage:              progress.StageExtracting,
		RealTimeUpdatesDelivered: true,
	}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})

	out, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.Error(t, err)
	assert.Empty(t, out.Replayed)
	assert.Equal(t, []string{"uploading:processing"}, rec.trail())
}

func TestSubmitUnauthorized(t *testing.T) {
	us := newUploadServer(t, http.StatusUnauthorized, pipeline.Response{
		Message:     pipeline.MsgUnauthorized,
		FailedStage: progress.StageUploading,
	}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{})

	_, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	assert.Equal(t, []string{"uploading:processing", "uploading:error"}, rec.trail())
	assert.Empty(t, us.lastReq.Load().Header.Get("Authorization"))
}

func TestSubmitSendsIdentityAndImage(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{RealTimeUpdatesDelivered: true}, http.StatusOK)
	s, _ := newTestSubmitter(t, us, SubmitterOptions{Token: "user-1"})
	img := testPNG(t)

	out, err := s.Submit(context.Background(), "/tmp/photos/soup.png", img)
	require.NoError(t, err)

	req := us.lastReq.Load()
	require.NotNil(t, req)
	assert.Equal(t, "client_abc", req.Header.Get("X-Client-ID"))
	assert.Equal(t, "Bearer user-1", req.Header.Get("Authorization"))
	assert.Contains(t, req.Header.Get("User-Agent"), "recipebox/")
	assert.Equal(t, img, *us.image.Load())
	assert.Equal(t, "client_abc", out.ClientID)
}

func TestSubmitRejectsLocally(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{MaxBytes: 64})

	tests := []struct {
		name  string
		image []byte
		want  string
	}{
		{"empty", nil, "empty"},
		{"not an image", []byte("plain text, definitely not a photo"), "not a supported image"},
		{"too large", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 128)...), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Submit(context.Background(), "x", tt.image)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.IsInvalidRequest(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Zero(t, us.posts.Load())
	assert.Empty(t, rec.trail())
}

func TestSubmitPreflight(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{}, http.StatusServiceUnavailable)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{Preflight: true})

	_, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailable(err))
	assert.Contains(t, err.Error(), MsgServiceUnavailable)
	assert.Zero(t, us.posts.Load())
	assert.Empty(t, rec.trail())
}

func TestSubmitPreflightPasses(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{RealTimeUpdatesDelivered: true}, http.StatusOK)
	s, _ := newTestSubmitter(t, us, SubmitterOptions{Preflight: true})

	_, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, int32(1), us.posts.Load())
}

func TestSubmitTransportFailure(t *testing.T) {
	us := newUploadServer(t, http.StatusCreated, pipeline.Response{}, http.StatusOK)
	s, rec := newTestSubmitter(t, us, SubmitterOptions{})
	us.Close()

	_, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailable(err))
	assert.Equal(t, []string{"uploading:processing", "uploading:error"}, rec.trail())
}

func TestSubmitNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))
	t.Cleanup(srv.Close)

	bus := progress.NewBus()
	rec := record(bus)
	s := NewSubmitter(SubmitterOptions{BaseURL: srv.URL}, httpclient.Wrap(srv.Client()), staticIDs("client_abc"), bus, nil)

	out, err := s.Submit(context.Background(), "soup.png", testPNG(t))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, out.Status)
	assert.Equal(t, []string{"uploading:processing", "uploading:error"}, rec.trail())
}
