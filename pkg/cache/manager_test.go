package cache

import (
	"context"
	"testing"

	"github.com/snow-ghost/dilemma/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(seed uint64) MatchRequest {
	cfg := match.DefaultConfig()
	cfg.Seed = seed
	return MatchRequest{A: Fingerprint("tit_for_tat", []byte("a")), B: Fingerprint("grudger", []byte("b")), Match: cfg, Cache: true}
}

func TestResultCachePlay(t *testing.T) {
	rc, err := NewResultCache(nil)
	require.NoError(t, err)
	defer rc.Close()

	var hits []bool
	rc.OnLookup(func(_ context.Context, _ CacheKey, hit bool) { hits = append(hits, hit) })

	calls := 0
	play := func() (match.Result, error) {
		calls++
		return result("m"), nil
	}

	_, err = rc.Play(context.Background(), request(1), play)
	require.NoError(t, err)
	res, err := rc.Play(context.Background(), request(1), play)
	require.NoError(t, err)
	assert.Equal(t, "m", res.ID)
	assert.Equal(t, 1, calls)

	_, err = rc.Play(context.Background(), request(2), play)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []bool{false, true, false}, hits)
	assert.Equal(t, 2, rc.Len())

	stats := rc.Stats()
	assert.Equal(t, int64(1), stats["cache"].(map[string]interface{})["hits"])
}

func TestResultCacheDisabled(t *testing.T) {
	rc, err := NewResultCache(nil)
	require.NoError(t, err)
	defer rc.Close()

	req := request(1)
	req.Cache = false
	calls := 0
	for i := 0; i < 3; i++ {
		_, err := rc.Play(context.Background(), req, func() (match.Result, error) {
			calls++
			return result("m"), nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, rc.Len())
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey(request(1))
	require.NoError(t, err)
	k2, _ := GenerateKey(request(1))
	k3, _ := GenerateKey(request(2))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)

	// cache options do not change the key
	r := request(1)
	r.Cache = false
	k4, _ := GenerateKey(r)
	assert.Equal(t, k1, k4)

	assert.NotEqual(t, Fingerprint("a", []byte("x")), Fingerprint("a", []byte("y")))
	assert.Len(t, Fingerprint("a", nil), 16)
}

func TestResultCacheSetGetDelete(t *testing.T) {
	rc, _ := NewResultCache(nil)
	defer rc.Close()

	req := request(5)
	require.NoError(t, rc.Set(req, result("stored")))
	got, ok := rc.Get(req)
	require.True(t, ok)
	assert.Equal(t, "stored", got.ID)

	require.NoError(t, rc.Delete(req))
	_, ok = rc.Get(req)
	assert.False(t, ok)

	rc.Clear()
	assert.Equal(t, 0, rc.Len())
}
