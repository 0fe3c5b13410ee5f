package polytrack

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

	"github.com/Mythses/polystat/internal/domain/leaderboard"
)

func TestPageDTO_Parsing(t *testing.T) {
	jsonData := `{
    "total": 9500,
    "entries": [
        {
            "id": 101,
            "userId": "aabbccdd",
            "name": "speedster",
            "carColors": "ff000000ff00",
            "frames": 61500,
            "verifiedState": 1,
            "position": 91
        }
    ],
    "userEntry": {
        "id": 202,
        "userId": "deadbeef",
        "name": "subject",
        "carColors": "",
        "frames": 59000,
        "verifiedState": 0,
        "position": 47
    }
}`

	var page PageDTO
	err := json.Unmarshal([]byte(jsonData), &page)
	assert.NoError(t, err)

	assert.Equal(t, 9500, page.Total)
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, int64(101), page.Entries[0].ID)
	assert.Equal(t, "speedster", page.Entries[0].Name)
	assert.Equal(t, int64(61500), page.Entries[0].Frames)

	require.NotNil(t, page.UserEntry)
	assert.Equal(t, 47, page.UserEntry.Position)
}

func TestPageDTO_NullUserEntry(t *testing.T) {
	var page PageDTO
	err := json.Unmarshal([]byte(`{"total":5,"entries":[],"userEntry":null}`), &page)
	assert.NoError(t, err)
	assert.Nil(t, page.UserEntry)
}

// newProxyTestClient stands up a test server that plays the relay: it
// expects the whole upstream URL in the "url" query parameter and answers
// with the handler's response.
func newProxyTestClient(t *testing.T, handler func(w http.ResponseWriter, upstream *url.URL)) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("url")
		upstream, err := url.Parse(raw)
		require.NoError(t, err)
		handler(w, upstream)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("https://vps.example.com:43273", srv.URL+"/?url=")
	cfg.Registerer = prometheus.NewRegistry()
	return NewClient(cfg), srv
}

func TestFetchPageBuildsProxiedURL(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, upstream *url.URL) {
		assert.Equal(t, "/leaderboard", upstream.Path)
		q := upstream.Query()
		assert.Equal(t, "0.5.0", q.Get("version"))
		assert.Equal(t, "sometrack", q.Get("trackId"))
		assert.Equal(t, "90", q.Get("skip"))
		assert.Equal(t, "10", q.Get("amount"))
		assert.Equal(t, "false", q.Get("onlyVerified"))
		assert.Equal(t, "cafebabe", q.Get("userTokenHash"))

		json.NewEncoder(w).Encode(PageDTO{Total: 95})
	})

	page, err := client.FetchPage(context.Background(), PageRequest{
		TrackID:       "sometrack",
		Skip:          90,
		Amount:        10,
		UserTokenHash: "cafebabe",
	})
	require.NoError(t, err)
	assert.Equal(t, 95, page.Total)
}

func TestFetchPageServerError(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, _ *url.URL) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPage(context.Background(), PageRequest{TrackID: "t", Amount: 1})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestFetchPageNotFoundIsNotRetryable(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, _ *url.URL) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchPage(context.Background(), PageRequest{TrackID: "t", Amount: 1})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.IsNotFound())
}

func TestFetchUserInfo(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, upstream *url.URL) {
		assert.Equal(t, "/user", upstream.Path)
		assert.Equal(t, "secret-token", upstream.Query().Get("userToken"))
		json.NewEncoder(w).Encode(UserInfoDTO{Name: "racer", CarColors: "ff0000", IsVerifier: true})
	})

	info, err := client.FetchUserInfo(context.Background(), "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "racer", info.Name)
	assert.True(t, info.IsVerifier)
}

func TestFetchRecordings(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, upstream *url.URL) {
		assert.Equal(t, "/recordings", upstream.Path)
		assert.Equal(t, "1,2,3", upstream.Query().Get("recordingIds"))
		json.NewEncoder(w).Encode([]*RecordingDTO{
			{Recording: "ghost-1", Frames: 60000},
			nil,
			{Recording: "ghost-3", Frames: 61000},
		})
	})

	recs, err := client.FetchRecordings(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "ghost-1", recs[0].Recording)
	assert.Nil(t, recs[1])
}

func TestFetchRecordingsEmptyInput(t *testing.T) {
	client, _ := newProxyTestClient(t, func(w http.ResponseWriter, _ *url.URL) {
		t.Fatal("no request expected for empty id list")
	})

	recs, err := client.FetchRecordings(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, recs)
}

func TestMapperStandingDerivesRankAndPercent(t *testing.T) {
	mapper := NewMapper()

	dto := &PageDTO{
		Total: 200,
		UserEntry: &EntryDTO{
			ID: 7, UserID: "deadbeef", Name: "subject",
			Frames: 59000, VerifiedState: 1, Position: 3,
		},
	}

	standing, ok := mapper.StandingFromDTO(dto)
	require.True(t, ok)
	assert.Equal(t, leaderboard.Position(3), standing.Rank)
	assert.True(t, standing.HasPercent)
	assert.InDelta(t, 1.5, float64(standing.Percent), 1e-9)
	assert.Equal(t, leaderboard.VerifiedStateVerified, standing.VerifiedState)

	_, ok = mapper.StandingFromDTO(&PageDTO{Total: 200})
	assert.False(t, ok)
}

func TestMapperPageFromDTO(t *testing.T) {
	mapper := NewMapper()

	dto := &PageDTO{
		Total: 95,
		Entries: []EntryDTO{
			{ID: 1, Name: "a", Position: 91},
			{ID: 2, Name: "b", Position: 92},
		},
		UserEntry: &EntryDTO{ID: 3, Name: "me", Position: 47},
	}

	page := mapper.PageFromDTO(dto, 10, 10)
	assert.Equal(t, 10, page.TotalPages)
	assert.Len(t, page.Entries, 2)
	require.NotNil(t, page.UserEntry)
	assert.Equal(t, 5, page.UserPage)
}

func TestMapperUnknownVerifiedState(t *testing.T) {
	mapper := NewMapper()
	entry := mapper.EntryFromDTO(EntryDTO{VerifiedState: 7})
	assert.Equal(t, leaderboard.VerifiedStateUnknown, entry.VerifiedState)
}
