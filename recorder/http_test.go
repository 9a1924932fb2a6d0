package recorder

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/locator/audit"
)

func testServer(t *testing.T) (*Recorder, *httptest.Server) {
	t.Helper()
	r := testRecorder(t)
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return r, srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHTTP_Health(t *testing.T) {
	_, srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
}

func TestHTTP_Resolve(t *testing.T) {
	_, srv := testServer(t)

	var res Result
	code := doJSON(t, "POST", srv.URL+"/resolve", Page{HTML: cardsPage(10), Target: "main > div:nth-of-type(4)"}, &res)
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if indexOf(res.Buckets.Unique.Base, "div.card:nth-of-type(4)") < 0 {
		t.Error("derived candidate missing from unique bucket")
	}

	var e map[string]string
	code = doJSON(t, "POST", srv.URL+"/resolve", Page{HTML: cardsPage(1), Target: "#missing"}, &e)
	if code != http.StatusBadRequest || !strings.Contains(e["error"], "no visible element") {
		t.Errorf("missing target: %d %v", code, e)
	}
}

func TestHTTP_EventLifecycle(t *testing.T) {
	_, srv := testServer(t)

	var evt Event
	code := doJSON(t, "POST", srv.URL+"/events", RecordPageRequest{
		Page:   Page{HTML: cardsPage(10), Target: "main > div:nth-of-type(4)"},
		Action: "click",
	}, &evt)
	if code != http.StatusCreated {
		t.Fatalf("record status: %d", code)
	}
	base := srv.URL + "/events/" + evt.ID

	var list []Event
	if code := doJSON(t, "GET", srv.URL+"/events?limit=10", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: %d, %d events", code, len(list))
	}

	var got Event
	if code := doJSON(t, "GET", base, nil, &got); code != http.StatusOK || got.ID != evt.ID {
		t.Fatalf("get: %d %+v", code, got)
	}

	var br bucketsResponse
	if code := doJSON(t, "GET", base+"/buckets", nil, &br); code != http.StatusOK {
		t.Fatalf("buckets: %d", code)
	}
	idx := indexOf(br.Buckets.Unique.Base, "div.card:nth-of-type(4)")
	if idx < 0 {
		t.Fatal("derived candidate missing")
	}

	if code := doJSON(t, "POST", base+"/apply", ApplyRequest{Bucket: "unique", Source: "base", Index: idx}, &got); code != http.StatusOK {
		t.Fatalf("apply: %d", code)
	}
	if got.Selector != "div.card:nth-of-type(4)" {
		t.Errorf("applied selector: %q", got.Selector)
	}

	var cr codeResponse
	if code := doJSON(t, "GET", base+"/code?framework=cypress", nil, &cr); code != http.StatusOK {
		t.Fatalf("code: %d", code)
	}
	if cr.Code != `cy.get('div.card:nth-of-type(4)').click();` {
		t.Errorf("code: %s", cr.Code)
	}

	ai := map[string]any{"candidates": []map[string]any{{"selector": "xpath=//main/div[4]"}}}
	if code := doJSON(t, "POST", base+"/ai", ai, &got); code != http.StatusOK || len(got.AICandidates) != 1 {
		t.Fatalf("ai: %d %+v", code, got.AICandidates)
	}

	if code := doJSON(t, "DELETE", base, nil, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code := doJSON(t, "GET", base, nil, nil); code != http.StatusNotFound {
		t.Errorf("get deleted: %d", code)
	}
}

func TestHTTP_Errors(t *testing.T) {
	r, srv := testServer(t)

	resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json: %d", resp.StatusCode)
	}

	if code := doJSON(t, "GET", srv.URL+"/events/evt_missing/code", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing event code: %d", code)
	}

	r.config.MaxBody = 64
	small := httptest.NewServer(r.Handler())
	defer small.Close()
	if code := doJSON(t, "POST", small.URL+"/resolve", Page{HTML: cardsPage(20), Target: "div"}, nil); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: %d", code)
	}

	r.SetPageSource(nil)
	if code := doJSON(t, "POST", srv.URL+"/resolve", Page{URL: "https://x.test/", Target: "div"}, nil); code != http.StatusServiceUnavailable {
		t.Errorf("no browser: %d", code)
	}
}

func TestHTTP_AuditTrail(t *testing.T) {
	r, srv := testServer(t)

	var evt Event
	doJSON(t, "POST", srv.URL+"/events", RecordPageRequest{
		Page:   Page{HTML: cardsPage(3), Target: "main > div:nth-of-type(2)"},
		Action: "click",
	}, &evt)
	doJSON(t, "GET", srv.URL+"/events/missing", nil, nil)
	r.audit.Close()

	var entries []audit.Entry
	if code := doJSON(t, "GET", srv.URL+"/audit", nil, &entries); code != http.StatusOK {
		t.Fatalf("audit: %d", code)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Transport != "http" || e.RequestID == "" {
			t.Errorf("entry context: %+v", e)
		}
	}

	var failed []audit.Entry
	doJSON(t, "GET", srv.URL+"/audit?status=error", nil, &failed)
	if len(failed) != 1 || failed[0].Operation != "get" {
		t.Errorf("failed entries: %+v", failed)
	}
	var records []audit.Entry
	doJSON(t, "GET", srv.URL+"/audit?operation=record&limit=5", nil, &records)
	if len(records) != 1 || records[0].Status != audit.StatusSuccess {
		t.Errorf("record entries: %+v", records)
	}
}
