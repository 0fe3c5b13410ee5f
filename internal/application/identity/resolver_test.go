package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mythses/polystat/internal/domain/shared"
	"github.com/Mythses/polystat/internal/domain/track"
	"github.com/Mythses/polystat/internal/infrastructure/external/polytrack"
)

// newTestClient points a real client at a stub proxy that decodes the
// relayed endpoint and dispatches on its path.
func newTestClient(t *testing.T, handler func(endpoint *url.URL, w http.ResponseWriter)) *polytrack.Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("url")
		endpoint, err := url.Parse(raw)
		require.NoError(t, err)
		handler(endpoint, w)
	}))
	t.Cleanup(server.Close)

	cfg := polytrack.DefaultClientConfig("http://upstream.test", server.URL+"/?url=")
	cfg.Registerer = prometheus.NewRegistry()
	return polytrack.NewClient(cfg)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("User_Token")
	require.NoError(t, err)
	assert.Equal(t, KindUserToken, kind)

	_, err = ParseKind("telepathy")
	assert.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken(shared.UserToken("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hash.String())

	// Surrounding whitespace must not change the digest.
	trimmed, err := HashToken(shared.UserToken("  abc  "))
	require.NoError(t, err)
	assert.Equal(t, hash, trimmed)

	_, err = HashToken(shared.UserToken("   "))
	assert.Error(t, err)
}

func TestResolveUserIDPassthrough(t *testing.T) {
	r := NewResolver(nil, track.MustDefault(), nil)

	ident, err := r.Resolve(context.Background(), "  deadbeef  ", KindUserID, "")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", ident.UserID)
	assert.Nil(t, ident.IsVerifier)

	_, err = r.Resolve(context.Background(), "   ", KindUserID, "")
	assert.Error(t, err)
}

func TestResolveTokenHashesAndFetchesProfile(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		require.Equal(t, "/user", endpoint.Path)
		assert.Equal(t, "abc", endpoint.Query().Get("userToken"))
		json.NewEncoder(w).Encode(polytrack.UserInfoDTO{
			Name:       "Speedster",
			CarColors:  "ff0000",
			IsVerifier: true,
		})
	})
	r := NewResolver(client, track.MustDefault(), nil)

	ident, err := r.Resolve(context.Background(), "abc", KindUserToken, "")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ident.UserID)
	assert.Equal(t, "Speedster", ident.Name)
	require.NotNil(t, ident.IsVerifier)
	assert.True(t, *ident.IsVerifier)
}

func TestResolveTokenSurvivesProfileFailure(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
	})
	r := NewResolver(client, track.MustDefault(), nil)

	ident, err := r.Resolve(context.Background(), "abc", KindUserToken, "")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ident.UserID)
	assert.Empty(t, ident.Name)
	assert.Nil(t, ident.IsVerifier)
}

func TestResolveByRank(t *testing.T) {
	trackID := track.MustDefault().Official[0].ID

	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		q := endpoint.Query()
		assert.Equal(t, "41", q.Get("skip"))
		assert.Equal(t, "1", q.Get("amount"))
		json.NewEncoder(w).Encode(polytrack.PageDTO{
			Total: 100,
			Entries: []polytrack.EntryDTO{
				{UserID: "cafe01", Name: "FortySecond", CarColors: "00ff00", Frames: 61234, Position: 42},
			},
		})
	})
	r := NewResolver(client, track.MustDefault(), nil)

	ident, err := r.Resolve(context.Background(), "42", KindRankNumber, trackID)
	require.NoError(t, err)
	assert.Equal(t, "cafe01", ident.UserID)
	assert.Equal(t, "FortySecond", ident.Name)
}

func TestResolveByRankValidation(t *testing.T) {
	r := NewResolver(nil, track.MustDefault(), nil)

	_, err := r.Resolve(context.Background(), "0", KindRankNumber, "sometrack")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "abc", KindRankNumber, "sometrack")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "5", KindRankNumber, "")
	assert.Error(t, err)
}

func TestResolveByRankEmptyBoard(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(polytrack.PageDTO{Total: 0, Entries: []polytrack.EntryDTO{}})
	})
	r := NewResolver(client, track.MustDefault(), nil)

	_, err := r.Resolve(context.Background(), "1", KindRankNumber, "sometrack")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestLookupProfileScansCatalog(t *testing.T) {
	catalog := track.MustDefault()
	hit := catalog.Official[2].ID

	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		q := endpoint.Query()
		if q.Get("trackId") != hit {
			json.NewEncoder(w).Encode(polytrack.PageDTO{Total: 5, Entries: []polytrack.EntryDTO{}})
			return
		}
		if q.Get("userTokenHash") != "" {
			json.NewEncoder(w).Encode(polytrack.PageDTO{
				Total:     50,
				Entries:   []polytrack.EntryDTO{},
				UserEntry: &polytrack.EntryDTO{UserID: "cafe02", Frames: 45000, Position: 7},
			})
			return
		}
		assert.Equal(t, "6", q.Get("skip"))
		json.NewEncoder(w).Encode(polytrack.PageDTO{
			Total: 50,
			Entries: []polytrack.EntryDTO{
				{UserID: "cafe02", Name: "Ghost", CarColors: "0000ff", Frames: 45000, Position: 7},
			},
		})
	})
	r := NewResolver(client, catalog, nil)

	ident, err := r.LookupProfile(context.Background(), "cafe02", false)
	require.NoError(t, err)
	assert.Equal(t, "Ghost", ident.Name)
	assert.Equal(t, "0000ff", ident.CarColors)
}

// memoryProfiles implements profileCache in memory.
type memoryProfiles struct {
	entries map[string][2]string
	sets    int
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{entries: make(map[string][2]string)}
}

func (m *memoryProfiles) GetProfile(ctx context.Context, userID string) (string, string, bool) {
	e, ok := m.entries[userID]
	return e[0], e[1], ok
}

func (m *memoryProfiles) SetProfile(ctx context.Context, userID, name, carColors string) error {
	m.sets++
	m.entries[userID] = [2]string{name, carColors}
	return nil
}

func TestLookupProfileCacheHitSkipsScan(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		t.Error("cached profile lookup must not go upstream")
	})
	profiles := newMemoryProfiles()
	profiles.entries["cafe03"] = [2]string{"Cached", "a1b2c3"}
	r := NewResolver(client, track.MustDefault(), nil).WithProfileCache(profiles)

	ident, err := r.LookupProfile(context.Background(), "cafe03", false)
	require.NoError(t, err)
	assert.Equal(t, "Cached", ident.Name)
	assert.Equal(t, "a1b2c3", ident.CarColors)
}

func TestLookupProfileStoresOnDiscovery(t *testing.T) {
	catalog := track.MustDefault()
	hit := catalog.Official[0].ID

	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		q := endpoint.Query()
		if q.Get("trackId") != hit {
			json.NewEncoder(w).Encode(polytrack.PageDTO{Total: 5, Entries: []polytrack.EntryDTO{}})
			return
		}
		if q.Get("userTokenHash") != "" {
			json.NewEncoder(w).Encode(polytrack.PageDTO{
				Total:     10,
				Entries:   []polytrack.EntryDTO{},
				UserEntry: &polytrack.EntryDTO{UserID: "cafe04", Frames: 42000, Position: 1},
			})
			return
		}
		json.NewEncoder(w).Encode(polytrack.PageDTO{
			Total: 10,
			Entries: []polytrack.EntryDTO{
				{UserID: "cafe04", Name: "Fresh", CarColors: "ffffff", Frames: 42000, Position: 1},
			},
		})
	})
	profiles := newMemoryProfiles()
	r := NewResolver(client, catalog, nil).WithProfileCache(profiles)

	ident, err := r.LookupProfile(context.Background(), "cafe04", false)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", ident.Name)
	assert.Equal(t, 1, profiles.sets)

	name, carColors, ok := profiles.GetProfile(context.Background(), "cafe04")
	require.True(t, ok)
	assert.Equal(t, "Fresh", name)
	assert.Equal(t, "ffffff", carColors)
}

func TestResolveTokenStoresProfile(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(polytrack.UserInfoDTO{Name: "Speedster", CarColors: "ff0000"})
	})
	profiles := newMemoryProfiles()
	r := NewResolver(client, track.MustDefault(), nil).WithProfileCache(profiles)

	ident, err := r.Resolve(context.Background(), "abc", KindUserToken, "")
	require.NoError(t, err)

	name, _, ok := profiles.GetProfile(context.Background(), ident.UserID)
	require.True(t, ok)
	assert.Equal(t, "Speedster", name)
}

func TestLookupProfileNotFound(t *testing.T) {
	client := newTestClient(t, func(endpoint *url.URL, w http.ResponseWriter) {
		json.NewEncoder(w).Encode(polytrack.PageDTO{Total: 0, Entries: []polytrack.EntryDTO{}})
	})
	r := NewResolver(client, track.MustDefault(), nil)

	_, err := r.LookupProfile(context.Background(), "nobody", false)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}
