package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tessera/internal/capability"
)

type scheduleBody struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Schedule struct {
		ID      string `json:"id"`
		Pattern string `json:"pattern"`
		Root    string `json:"root"`
		Binding *struct {
			Parts   int `json:"parts"`
			PerCore int `json:"per_core"`
		} `json:"binding"`
	} `json:"schedule"`
}

type errorBody struct {
	Error ResponseError `json:"error"`
}

func newTestEcho() *echo.Echo {
	server := NewServer(NewScheduleStore(), capability.NewRegistry(), Options{BatchLimit: 2})
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

const quantRequest = `{"pattern":"quant","profile":"cloud","shape":[1,1,512,512,16]}`

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	createRec := doJSON(t, e, http.MethodPost, "/v1/schedules", quantRequest)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status: got %d body=%s", createRec.Code, createRec.Body.String())
	}
	created := decode[scheduleBody](t, createRec)
	if !strings.HasPrefix(created.ID, "sched_") {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.Schedule.ID != created.ID || created.Schedule.Root != "y" || created.Schedule.Pattern != "quant" {
		t.Fatalf("unexpected schedule: %+v", created.Schedule)
	}
	if b := created.Schedule.Binding; b == nil || b.Parts != 32 || b.PerCore != 8 {
		t.Fatalf("unexpected binding: %+v", b)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/schedules/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	if !strings.Contains(getRec.Body.String(), `"rule":"tile-outer"`) {
		t.Fatalf("get body missing binding rule: %s", getRec.Body.String())
	}

	listRec := doJSON(t, e, http.MethodGet, "/v1/schedules", "")
	if !strings.Contains(listRec.Body.String(), created.ID) {
		t.Fatalf("list missing %s: %s", created.ID, listRec.Body.String())
	}

	delRec := doJSON(t, e, http.MethodDelete, "/v1/schedules/"+created.ID, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	if !strings.Contains(delRec.Body.String(), `"deleted":true`) {
		t.Fatalf("delete response missing deleted=true: %s", delRec.Body.String())
	}

	if rec := doJSON(t, e, http.MethodGet, "/v1/schedules/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, e, http.MethodDelete, "/v1/schedules/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestCreateScheduleErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	tests := []struct {
		name   string
		body   string
		status int
		typ    string
		phase  string
	}{
		{"malformed", `{"pattern":`, http.StatusBadRequest, "invalid_request_error", ""},
		{"no pattern", `{"shape":[1]}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"unknown profile", `{"pattern":"quant","profile":"nope","shape":[1,1,16,16,16]}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"zero cores", `{"pattern":"quant","capability":{"scratchpad_bytes":65536,"core_num":0},"shape":[1,1,16,16,16]}`,
			http.StatusBadRequest, "invalid_request_error", ""},
		{"attrs type", `{"pattern":"quant","attrs":{"scale":"big"},"shape":[1,1,16,16,16]}`, http.StatusBadRequest, "invalid_request_error", ""},
		{"unnamed tensor", `{"pattern":"quant","graph":{"tensors":[{"shape":[1],"dtype":"float16","tag":"placeholder"}],"outputs":["x"]}}`,
			http.StatusUnprocessableEntity, "invalid_graph_shape", ""},
		{"unknown pattern", `{"pattern":"softmax","shape":[4]}`, http.StatusUnprocessableEntity, "unsupported_pattern", ""},
		{"bad rank", `{"pattern":"quant","shape":[16,16]}`, http.StatusUnprocessableEntity, "invalid_graph_shape", ""},
		{"unknown tag", `{"pattern":"quant","graph":{"tensors":[
			{"name":"x","shape":[1,1,16,16,16],"dtype":"float16","tag":"placeholder"},
			{"name":"m","shape":[1,1,16,16,16],"dtype":"float16","tag":"elewise_single_mystery","inputs":["x"]},
			{"name":"y","shape":[1,1,16,16,16],"dtype":"int8","tag":"elewise_single_cast","inputs":["m"]}
		],"outputs":["y"]}}`, http.StatusUnprocessableEntity, "instruction_mapping_miss", "placed"},
		{"too small", `{"pattern":"quant","capability":{"scratchpad_bytes":64,"core_num":1},"shape":[1,1,4,4,16]}`,
			http.StatusUnprocessableEntity, "capacity_infeasible", "staged"},
	}
	for _, tt := range tests {
		rec := doJSON(t, e, http.MethodPost, "/v1/schedules", tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status got %d want %d body=%s", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		body := decode[errorBody](t, rec)
		if body.Error.Type != tt.typ || body.Error.Phase != tt.phase {
			t.Fatalf("%s: error = %+v, want type %q phase %q", tt.name, body.Error, tt.typ, tt.phase)
		}
	}
}

func TestProfilesAndHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodGet, "/v1/profiles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profiles status: got %d", rec.Code)
	}
	list := decode[ProfileList](t, rec)
	if len(list.Data) != 3 || list.Data[0].Name != "cloud" {
		t.Fatalf("unexpected profiles: %+v", list.Data)
	}

	rec = doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBatchStoresSuccesses(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	body := `[` + quantRequest + `,{"pattern":"softmax","shape":[4]},{"pattern":"bn_update","profile":"edge","shape":[2,2,8,8,16]}]`
	rec := doJSON(t, e, http.MethodPost, "/v1/batches", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Results   []struct {
			ID    string `json:"id"`
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"results"`
	}](t, rec)
	if resp.Succeeded != 2 || resp.Failed != 1 || len(resp.Results) != 3 {
		t.Fatalf("unexpected batch response: %+v", resp)
	}
	if resp.Results[1].Kind != "unsupported pattern" {
		t.Fatalf("unexpected failure kind %q", resp.Results[1].Kind)
	}
	for _, i := range []int{0, 2} {
		get := doJSON(t, e, http.MethodGet, "/v1/schedules/"+resp.Results[i].ID, "")
		if get.Code != http.StatusOK {
			t.Fatalf("batch result %d not stored: %d", i, get.Code)
		}
	}

	if rec := doJSON(t, e, http.MethodPost, "/v1/batches", `[]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch: got %d", rec.Code)
	}
}
