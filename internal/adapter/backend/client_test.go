package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-labc/cropai/internal/adapter/cache"
	"github.com/ai-labc/cropai/internal/domain"
	"github.com/ai-labc/cropai/internal/observability"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) (*Client, cache.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := cache.Open(cache.Config{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewClient(baseURL, timeout, store, time.Hour, logger, observability.NewMetricsForTesting())
	return c, store
}

func envelopeBody(data string) string {
	return fmt.Sprintf(`{"data":%s,"timestamp":"2024-06-01T00:00:00Z","status":"success"}`, data)
}

func TestClient_FarmsSuccessPopulatesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, PathFarms, r.URL.Path)
		fmt.Fprint(w, envelopeBody(`[{"id":"farm-1","name":"Hartland Colony","location":{"lat":52.619167,"lng":-113.092639},"area":250.5,"defaultCropId":"crop-1"}]`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, time.Second)

	farms, err := c.Farms(context.Background())
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, "Hartland Colony", farms[0].Name)
	assert.Equal(t, "crop-1", farms[0].DefaultCropID)

	_, ok := store.Get(domain.Fingerprint(PathFarms, nil))
	assert.True(t, ok, "successful response should be cached")

	// Second call is served from cache, no network round trip.
	_, err = c.Farms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FreshReadBypassesConsultButStores(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, envelopeBody(`{"productivityIncrease":12.5,"waterEfficiency":20.1,"esgAccuracy":91.2,"timestamp":"2024-06-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, time.Second)
	q := KPIQuery{FarmID: "farm-1", CropID: "crop-1"}

	_, err := c.KPI(context.Background(), q, false)
	require.NoError(t, err)
	_, err = c.KPI(context.Background(), q, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "useCache=false always goes to the network")

	_, ok := store.Get(domain.Fingerprint(PathKPI, q.Params()))
	assert.True(t, ok, "fresh reads still populate the cache")

	// A cached read now succeeds without another round trip.
	_, err = c.KPI(context.Background(), q, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_HTTPErrorStatusIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"data":null,"timestamp":"2024-06-01T00:00:00Z","status":"error","message":"upstream exploded"}`)
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, time.Second)

	_, err := c.Crops(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ErrAPI, domain.KindOf(err))

	var re *domain.RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "upstream exploded", re.Message)

	_, ok := store.Get(domain.Fingerprint(PathCrops, nil))
	assert.False(t, ok, "errors are never cached")
}

func TestClient_EnvelopeErrorStatusIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null,"timestamp":"2024-06-01T00:00:00Z","status":"error","message":"no data for field"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, time.Second)

	_, err := c.NDVIGrid(context.Background(), "field-1", "2024-06-01", true)
	require.Error(t, err)
	assert.Equal(t, domain.ErrAPI, domain.KindOf(err))
	assert.Contains(t, err.Error(), "no data for field")
}

func TestClient_MalformedEnvelopeIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, time.Second)

	_, err := c.Farms(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ErrAPI, domain.KindOf(err))
}

func TestClient_TimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 50*time.Millisecond)

	_, err := c.Farms(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ErrTimeout, domain.KindOf(err))
}

func TestClient_ConnectionRefusedIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c, _ := newTestClient(t, srv.URL, time.Second)

	_, err := c.Crops(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.ErrNetwork, domain.KindOf(err))
}

func TestClient_FieldsRequiresBothIDs(t *testing.T) {
	c, _ := newTestClient(t, "http://unused", time.Second)

	_, err := c.Fields(context.Background(), "farm-1", "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))
}

func TestClient_WeatherRequiresLocation(t *testing.T) {
	c, _ := newTestClient(t, "http://unused", time.Second)

	_, err := c.Weather(context.Background(), "field-1", SeriesQuery{}, true)
	require.Error(t, err)
	assert.Equal(t, domain.ErrValidation, domain.KindOf(err))
}

func TestClient_CorruptedCacheEntryFallsThroughToNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, envelopeBody(`[]`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, time.Second)

	fp := domain.Fingerprint(PathFarms, nil)
	store.Set(fp, []byte("garbage"), time.Hour)

	_, err := c.Farms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSeriesQuery_ParamsOmitsUnset(t *testing.T) {
	assert.Empty(t, SeriesQuery{}.Params().Encode())

	q := SeriesQuery{
		Location:  &domain.Location{Lat: 52.619167, Lng: -113.092639},
		DateRange: domain.DateRange{Start: "2024-05-01", End: "2024-09-15"},
	}
	params := q.Params()
	assert.Equal(t, "52.619167", params.Get("lat"))
	assert.Equal(t, "-113.092639", params.Get("lng"))
	assert.Equal(t, "2024-05-01", params.Get("date_start"))
	assert.Equal(t, "2024-09-15", params.Get("date_end"))
}

func TestFingerprint_MatchesRequestURL(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, envelopeBody(`{"productivityIncrease":1,"waterEfficiency":1,"esgAccuracy":1,"timestamp":"t"}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL, time.Second)
	q := KPIQuery{FarmID: "farm-1", FieldID: "field-1"}

	_, err := c.KPI(context.Background(), q, true)
	require.NoError(t, err)

	assert.Equal(t, "farm-1", gotQuery.Get("farm_id"))
	assert.Equal(t, "field-1", gotQuery.Get("field_id"))
	_, ok := store.Get(domain.Fingerprint(PathKPI, q.Params()))
	assert.True(t, ok)
}
