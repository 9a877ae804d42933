package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandingOf(t *testing.T) {
	ctx := context.Background()
	b := Static{
		Subscribed: map[string]bool{"paid": true},
		Trials:     map[string]bool{"new": true, "old": false},
	}

	cases := map[string]Standing{"paid": Active, "new": Trial, "old": Expired, "stranger": Expired}
	for owner, want := range cases {
		got, err := StandingOf(ctx, b, owner)
		require.NoError(t, err)
		assert.Equal(t, want, got, owner)
	}

	got, err := StandingOf(ctx, Static{Default: Active}, "anyone")
	require.NoError(t, err)
	assert.Equal(t, Active, got)
	assert.True(t, got.CanSend())
	assert.False(t, Expired.CanSend())
}

func TestClientCachesStanding(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/accounts/5511/standing", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"subscribed":false,"trial":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "tok", time.Minute)
	require.NoError(t, err)

	st, err := StandingOf(context.Background(), c, "5511")
	require.NoError(t, err)
	assert.Equal(t, Trial, st)

	_, err = StandingOf(context.Background(), c, "5511")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", time.Minute)
	require.NoError(t, err)

	_, err = StandingOf(context.Background(), c, "ghost")
	assert.Error(t, err)

	_, err = NewClient("", "", time.Minute)
	assert.Error(t, err)
}
