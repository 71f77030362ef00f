package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gatekeep "go.halcyon.sh/gatekeep"
	"go.halcyon.sh/gatekeep/cache"
)

// deadServer returns a base URI that refuses connections.
func deadServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	uri := srv.URL
	srv.Close()
	return uri
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifySessionStickySuccessReordering(t *testing.T) {
	a := deadServer(t)
	var bHits atomic.Int32
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bHits.Add(1)
		assert.Equal(t, "/v1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(b.Close)
	c := statusServer(t, http.StatusNoContent, "")

	ic := New(Config{Candidates: []string{a, b.URL, c.URL}}, nil)

	res := ic.VerifySession(context.Background(), "tok")
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, []string{b.URL, a, c.URL}, ic.Pool().Snapshot())

	// the promoted candidate answers first on the next call
	ic.VerifySession(context.Background(), "tok")
	assert.Equal(t, int32(2), bHits.Load())
}

func TestVerifySessionAllCandidatesFail(t *testing.T) {
	ic := New(Config{Candidates: []string{deadServer(t), deadServer(t)}}, nil)

	res := ic.VerifySession(context.Background(), "tok")
	assert.True(t, res.Empty())
	assert.Equal(t, gatekeep.FailureNetwork, res.Failure)
}

func TestVerifySessionKeepsUpstreamErrorAsFallback(t *testing.T) {
	bad := statusServer(t, http.StatusBadGateway, "upstream down")
	dead := deadServer(t)

	ic := New(Config{Candidates: []string{bad.URL, dead}}, nil)

	res := ic.VerifySession(context.Background(), "tok")
	assert.Equal(t, http.StatusBadGateway, res.Status)
	// a 5xx is not a sticky success, the order stays put
	assert.Equal(t, []string{bad.URL, dead}, ic.Pool().Snapshot())
}

func TestVerifySessionTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(slow.Close)

	ic := New(Config{Candidates: []string{slow.URL}, Timeout: 30 * time.Millisecond}, nil)

	res := ic.VerifySession(context.Background(), "tok")
	assert.True(t, res.Empty())
	assert.Equal(t, gatekeep.FailureTimeout, res.Failure)
}

func TestVerifySessionCachesValidSessions(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	ic := New(Config{Candidates: []string{srv.URL}, CacheTTL: time.Minute}, mem)

	first := ic.VerifySession(context.Background(), "tok")
	second := ic.VerifySession(context.Background(), "tok")
	assert.Equal(t, http.StatusNoContent, first.Status)
	assert.Equal(t, http.StatusNoContent, second.Status)
	assert.Equal(t, int32(1), hits.Load(), "the second verification must be served from cache")

	// a different token is not a hit
	ic.VerifySession(context.Background(), "other")
	assert.Equal(t, int32(2), hits.Load())
}

func TestVerifySessionDoesNotCacheRejections(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	ic := New(Config{Candidates: []string{srv.URL}, CacheTTL: time.Minute}, mem)

	ic.VerifySession(context.Background(), "tok")
	ic.VerifySession(context.Background(), "tok")
	assert.Equal(t, int32(2), hits.Load())
}

func TestVerifySessionCoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	ic := New(Config{Candidates: []string{srv.URL}}, nil)

	var wg sync.WaitGroup
	results := make([]gatekeep.VerificationResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ic.VerifySession(context.Background(), "tok")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, res := range results {
		assert.Equal(t, http.StatusNoContent, res.Status)
	}
}

func TestCreateUserDecodesEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/user", r.URL.Path)
		var payload struct {
			User struct {
				Email string `json:"email"`
			} `json:"user"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "a@b.com", payload.User.Email)
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	ic := New(Config{Candidates: []string{srv.URL}}, nil)
	status, err := ic.CreateUser(context.Background(), "a%40b.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)
}

func TestCreateUserTransportFailure(t *testing.T) {
	ic := New(Config{Candidates: []string{deadServer(t)}}, nil)
	_, err := ic.CreateUser(context.Background(), "a@b.com")
	assert.Error(t, err)
}

func TestConfirmEmailIgnoresStatus(t *testing.T) {
	srv := statusServer(t, http.StatusTeapot, "")
	ic := New(Config{Candidates: []string{srv.URL}}, nil)
	assert.NoError(t, ic.ConfirmEmail(context.Background(), "a@b.com", "123456"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth2/google", r.URL.Path)
		assert.Equal(t, "statetok", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "xyz", payload["code"])
		assert.Equal(t, "ABC123", payload["invitation"])

		json.NewEncoder(w).Encode(map[string]string{"detail": "https://app.example.com/welcome"}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	ic := New(Config{Candidates: []string{srv.URL}}, nil)
	uri, err := ic.ExchangeCode(context.Background(), gatekeep.ExchangeRequest{
		Provider:   "google",
		Code:       "xyz",
		Referrer:   "https://app.example.com/user/close/google",
		State:      "statetok",
		Invitation: "ABC123",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/welcome", uri)
}

func TestExchangeCodeRejected(t *testing.T) {
	srv := statusServer(t, http.StatusForbidden, `{"detail":"bad code"}`)
	ic := New(Config{Candidates: []string{srv.URL}}, nil)

	_, err := ic.ExchangeCode(context.Background(), gatekeep.ExchangeRequest{Provider: "google", Code: "xyz"})
	assert.ErrorIs(t, err, gatekeep.ErrExchangeRejected)
}
