package httpexec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/unillm/types"
)

// countingHeaderSource 每次构建都发出递增的令牌，用于验证 401 重建会读取新鲜凭据。
type countingHeaderSource struct {
	builds int32
	tokens []string
}

func (s *countingHeaderSource) BuildHeaders(context.Context) (http.Header, error) {
	n := atomic.AddInt32(&s.builds, 1)
	h := http.Header{}
	idx := int(n) - 1
	if idx >= len(s.tokens) {
		idx = len(s.tokens) - 1
	}
	h.Set("Authorization", "Bearer "+s.tokens[idx])
	h.Set("X-Base", "base")
	return h, nil
}

func TestExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"), "每个请求都应带请求 ID")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := New(Options{})
	resp, err := exec.Execute(context.Background(), &Request{
		Provider:  "test",
		Operation: "chat",
		Method:    http.MethodPost,
		URL:       srv.URL,
		Body:      []byte(`{}`),
	})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestExecute_PerRequestHeaderOverridesBase(t *testing.T) {
	var gotAuth, gotBase, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBase = r.Header.Get("X-Base")
		gotExtra = r.Header.Get("X-Extra")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec := New(Options{})
	_, err := exec.Execute(context.Background(), &Request{
		Provider:     "test",
		Method:       http.MethodPost,
		URL:          srv.URL,
		Body:         []byte(`{}`),
		HeaderSource: &countingHeaderSource{tokens: []string{"t1"}},
		Headers: map[string]string{
			"Authorization": "Bearer override",
			"X-Extra":       "extra",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer override", gotAuth, "单请求头应覆盖基础头")
	assert.Equal(t, "base", gotBase, "未冲突的基础头应保留")
	assert.Equal(t, "extra", gotExtra)
}

func TestExecute_Retry401RebuildsOnce(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"), "重发应携带新鲜令牌")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	src := &countingHeaderSource{tokens: []string{"stale", "fresh"}}
	exec := New(Options{Retry401: true})

	resp, err := exec.Execute(context.Background(), &Request{
		Provider:     "test",
		Method:       http.MethodPost,
		URL:          srv.URL,
		Body:         []byte(`{}`),
		HeaderSource: src,
	})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "应该发送两次（原始+重建）")
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.builds), "基础头应构建两次")
}

func TestExecute_Retry401AtMostOnce(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	exec := New(Options{Retry401: true})
	_, err := exec.Execute(context.Background(), &Request{
		Provider:     "test",
		Method:       http.MethodPost,
		URL:          srv.URL,
		Body:         []byte(`{}`),
		HeaderSource: &countingHeaderSource{tokens: []string{"t"}},
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "401 重建最多一次，之后失败返回")
}

func TestExecute_Retry401Disabled(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	exec := New(Options{Retry401: false})
	_, err := exec.Execute(context.Background(), &Request{
		Provider:     "test",
		Method:       http.MethodPost,
		URL:          srv.URL,
		Body:         []byte(`{}`),
		HeaderSource: &countingHeaderSource{tokens: []string{"t"}},
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "关闭开关时不应重发")
}

// abortInterceptor 在发送前中止请求。
type abortInterceptor struct {
	BaseInterceptor
	errSeen []error
}

func (a *abortInterceptor) OnBeforeSend(context.Context, *http.Request) error {
	return types.NewError(types.ErrConfiguration, "内容策略拒绝")
}

func (a *abortInterceptor) OnError(_ context.Context, err error) {
	a.errSeen = append(a.errSeen, err)
}

func TestExecute_InterceptorAborts(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	ic := &abortInterceptor{}
	exec := New(Options{Interceptors: []Interceptor{ic}})
	_, err := exec.Execute(context.Background(), &Request{
		Provider: "test",
		Method:   http.MethodPost,
		URL:      srv.URL,
		Body:     []byte(`{}`),
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests), "中止后不应发送")
	assert.NotEmpty(t, ic.errSeen, "错误观察者应被通知")
}

// failOnResponse 在响应观察阶段返回错误。
type failOnResponse struct {
	BaseInterceptor
}

func (failOnResponse) OnResponse(context.Context, *http.Response) error {
	return errors.New("observer failed")
}

func TestExecute_ResponseObserverFailureFailsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	exec := New(Options{Interceptors: []Interceptor{failOnResponse{}}})
	_, err := exec.Execute(context.Background(), &Request{
		Provider: "test",
		Method:   http.MethodPost,
		URL:      srv.URL,
		Body:     []byte(`{}`),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "observer failed")
}

// envelopeClassifier 识别自定义信封。
type envelopeClassifier struct{}

func (envelopeClassifier) ClassifyError(status int, body []byte) error {
	if status == 400 && string(body) == `{"reason":"special"}` {
		return types.NewError(types.ErrUnsupported, "信封识别").WithHTTPStatus(status)
	}
	return nil
}

func TestExecute_EnvelopeClassifierPrecedesHeuristic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"reason":"special"}`))
	}))
	defer srv.Close()

	exec := New(Options{})
	_, err := exec.Execute(context.Background(), &Request{
		Provider:   "test",
		Method:     http.MethodPost,
		URL:        srv.URL,
		Body:       []byte(`{}`),
		Classifier: envelopeClassifier{},
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrUnsupported, types.GetErrorCode(err), "信封解析应优先于启发式")
}

func TestExecuteStream_Handshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	exec := New(Options{})
	resp, err := exec.ExecuteStream(context.Background(), &Request{
		Provider: "test",
		Method:   http.MethodPost,
		URL:      srv.URL,
		Body:     []byte(`{}`),
	})

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestExecuteStream_NonSuccessClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	exec := New(Options{})
	_, err := exec.ExecuteStream(context.Background(), &Request{
		Provider: "test",
		Method:   http.MethodPost,
		URL:      srv.URL,
		Body:     []byte(`{}`),
	})

	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExecuteMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.wav", hdr.Filename)
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	exec := New(Options{})
	resp, err := exec.ExecuteMultipart(context.Background(), &Request{
		Provider: "test",
		URL:      srv.URL,
	}, map[string]string{"model": "whisper-1"}, []MultipartFile{
		{Field: "file", Filename: "audio.wav", Data: []byte("RIFF")},
	})

	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "hello")
}
