package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-backend/config"
	"parking-backend/internal/billing"
	"parking-backend/internal/model"
	"parking-backend/internal/store"
	"parking-backend/internal/store/storetest"
	"parking-backend/internal/tariff"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeTariffs keeps tariffs in a map.
type fakeTariffs struct {
	rows map[string]model.Tariff
}

func newFakeTariffs() *fakeTariffs {
	return &fakeTariffs{rows: map[string]model.Tariff{}}
}

func (f *fakeTariffs) List(context.Context) ([]model.Tariff, error) {
	out := make([]model.Tariff, 0, len(f.rows))
	for _, t := range f.rows {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTariffs) Get(_ context.Context, class string) (model.Tariff, error) {
	t, ok := f.rows[tariff.NormalizeClass(class)]
	if !ok {
		return model.Tariff{}, tariff.ErrNotFound
	}
	return t, nil
}

func (f *fakeTariffs) Upsert(_ context.Context, t model.Tariff) error {
	t.VehicleClass = tariff.NormalizeClass(t.VehicleClass)
	f.rows[t.VehicleClass] = t
	return nil
}

func (f *fakeTariffs) Seed(ctx context.Context, defaults []model.Tariff) error {
	for _, t := range defaults {
		if _, ok := f.rows[tariff.NormalizeClass(t.VehicleClass)]; !ok {
			_ = f.Upsert(ctx, t)
		}
	}
	return nil
}

func (f *fakeTariffs) Rates(ctx context.Context, class string) (billing.Rates, error) {
	t, err := f.Get(ctx, class)
	if err != nil {
		return billing.Rates{}, nil
	}
	return billing.Rates{FirstHour: t.FirstHour, SubsequentHour: t.SubsequentHour}, nil
}

func testServerConfig() config.ServerConfig {
	cfg := config.Config{}
	cfg.ApplyDefaults()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	return cfg.Server
}

func doJSON(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetStatus_PassesFilter(t *testing.T) {
	tag := "ABC123"
	var gotFilter string
	fake := &storetest.Fake{
		SnapshotFunc: func(_ context.Context, filter string) ([]store.CubicleView, error) {
			gotFilter = filter
			return []store.CubicleView{{Name: "A1", State: model.CubicleOccupied, Tag: &tag, Minutes: 90, Charge: 5000}}, nil
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodGet, "/api/status?search=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", gotFilter)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var views []store.CubicleView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, int64(5000), views[0].Charge)
}

func TestGetStatus_StoreUnavailable(t *testing.T) {
	fake := &storetest.Fake{
		SnapshotFunc: func(context.Context, string) ([]store.CubicleView, error) {
			return nil, errors.Mark(errors.New("connection refused"), store.ErrStoreUnavailable)
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"store unavailable"}`, w.Body.String())
}

func TestFinalizeBilling(t *testing.T) {
	exit := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &storetest.Fake{
		FinalizeBillingFunc: func(_ context.Context, id int64) (store.Settlement, error) {
			if id != 7 {
				return store.Settlement{}, errors.Wrapf(store.ErrRecordNotActive, "record %d", id)
			}
			return store.Settlement{RecordID: 7, CubicleName: "A1", Tag: "A-007", VehicleClass: "CARRO",
				Minutes: 90, Amount: 5000, ExitAt: exit}, nil
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodPost, "/api/billing/finalize", `{"record_id":7}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"record_id":7,"cubicle":"A1","tag":"A-007","vehicle_class":"CARRO",
		"minutes":90,"amount":5000,"exit_at":"2025-03-01T12:00:00Z"}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/billing/finalize", `{"record_id":8}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/api/billing/finalize", `{"record_id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/billing/finalize", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditTag(t *testing.T) {
	var gotTag string
	fake := &storetest.Fake{
		EditTagFunc: func(_ context.Context, id int64, tag string) error {
			if id == 99 {
				return errors.Wrap(store.ErrRecordNotFound, "record 99")
			}
			gotTag = tag
			return nil
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodPost, "/api/records/tag", `{"record_id":1,"tag":" abc123 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABC123", gotTag)

	w = doJSON(r, http.MethodPost, "/api/records/tag", `{"record_id":1,"tag":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/records/tag", `{"record_id":99,"tag":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	gotTag = ""
	w = doJSON(r, http.MethodPost, "/api/records/tag", `{"record_id":1,"tag":"`+strings.Repeat("X", 65)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gotTag, "an over-long tag never reaches the store")
}

func TestCancelReservation(t *testing.T) {
	fake := &storetest.Fake{
		CancelReservationFunc: func(_ context.Context, name string) (store.Cancellation, error) {
			if name != "A1" {
				return store.Cancellation{}, errors.Wrapf(store.ErrNoActiveAssignment, "cubicle %q", name)
			}
			return store.Cancellation{CubicleName: "A1", RecordID: 3, Tag: "A-003"}, nil
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodPost, "/api/reservations/cancel", `{"cubicle":"a1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cubicle":"A1","record_id":3,"tag":"A-003"}`, w.Body.String())

	w = doJSON(r, http.MethodPost, "/api/reservations/cancel", `{"cubicle":"B9"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/api/reservations/cancel", `{"cubicle":"`+strings.Repeat("A", 33)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTariffs(t *testing.T) {
	tariffs := newFakeTariffs()
	fake := &storetest.Fake{
		TariffForCubicleFunc: func(ctx context.Context, name string) (model.Tariff, error) {
			if name != "A1" {
				return model.Tariff{}, errors.Wrap(store.ErrCubicleNotFound, name)
			}
			return tariffs.Get(ctx, "CARRO")
		},
	}
	r := NewRouter(testServerConfig(), fake, tariffs, nil)

	w := doJSON(r, http.MethodPost, "/api/tariffs", `{"vehicle_class":"carro","first_hour":3000,"subsequent_hour":2000}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/tariffs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Tariff
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "CARRO", list[0].VehicleClass)

	// A write flushes the cached list.
	w = doJSON(r, http.MethodPost, "/api/tariffs", `{"vehicle_class":"MOTO","first_hour":0,"subsequent_hour":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/api/tariffs", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = doJSON(r, http.MethodGet, "/api/tariffs/cubicle/a1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"first_hour":3000`)

	w = doJSON(r, http.MethodGet, "/api/tariffs/cubicle/Z9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/api/tariffs", `{"vehicle_class":"CARRO","first_hour":-1,"subsequent_hour":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/api/tariffs", `{"vehicle_class":"CARRO","first_hour":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetReport(t *testing.T) {
	var gotFrom, gotTo *time.Time
	fake := &storetest.Fake{
		ReportFunc: func(_ context.Context, from, to *time.Time) (store.Report, error) {
			gotFrom, gotTo = from, to
			return store.Report{Total: 5000, ByClass: map[string]store.ClassTotal{"CARRO": {Count: 1, Total: 5000}}}, nil
		},
	}
	r := NewRouter(testServerConfig(), fake, newFakeTariffs(), nil)

	w := doJSON(r, http.MethodGet, "/api/report?from=2025-03-01&to=2025-03-02", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotFrom)
	require.NotNil(t, gotTo)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *gotFrom)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), *gotTo)
	assert.Contains(t, w.Body.String(), `"total":5000`)

	w = doJSON(r, http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotFrom)
	assert.Nil(t, gotTo)

	w = doJSON(r, http.MethodGet, "/api/report?from=03/01/2025", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/report?from=2025-03-02&to=2025-03-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	r := NewRouter(testServerConfig(), &storetest.Fake{}, newFakeTariffs(), nil)
	w := doJSON(r, http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"operator alerts are disabled"}`, w.Body.String())

	r = NewRouter(testServerConfig(), &storetest.Fake{}, newFakeTariffs(), &webpush.Options{VAPIDPublicKey: "pub"})
	w = doJSON(r, http.MethodGet, "/api/vapid_public_key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"vapid_public_key":"pub","alerts":["expiry","capacity"]}`, w.Body.String())
}
