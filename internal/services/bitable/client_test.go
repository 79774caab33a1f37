package bitable_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"reelpress/internal/config"
	"reelpress/internal/services"
	"reelpress/internal/services/bitable"
)

func storeConfig(baseURL string) config.Store {
	cfg := config.Default().Store
	cfg.BaseURL = baseURL
	cfg.AppID = "cli_test"
	cfg.AppSecret = "secret"
	cfg.AppToken = "appTok"
	cfg.TableID = "tbl1"
	cfg.ViewID = "view1"
	return cfg
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := config.Default().Store
	if _, err := bitable.New(cfg, nil); !errors.Is(err, bitable.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAuthenticateExchangesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open-apis/auth/v3/tenant_access_token/internal/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["app_id"] != "cli_test" || body["app_secret"] != "secret" {
			t.Errorf("unexpected credentials: %v", body)
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","tenant_access_token":"t-abc"}`)
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, err := client.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token != "t-abc" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestAuthenticateBusinessFailureIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":99991663,"msg":"app not found"}`)
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Authenticate(context.Background()); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestListAllFollowsPagination(t *testing.T) {
	schema := config.Default().Store.Fields
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer t-abc" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("view_id"); got != "view1" {
			t.Errorf("unexpected view id %q", got)
		}
		switch calls.Add(1) {
		case 1:
			fmt.Fprintf(w, `{"code":0,"data":{"has_more":true,"page_token":"p2","items":[{"record_id":"rec1","fields":{%q:"/v/a.mp4"}}]}}`, schema.SourcePath)
		default:
			if got := r.URL.Query().Get("page_token"); got != "p2" {
				t.Errorf("expected page token p2, got %q", got)
			}
			fmt.Fprintf(w, `{"code":0,"data":{"has_more":false,"items":[{"record_id":"rec2","fields":{%q:"/v/b.mp4"}}]}}`, schema.SourcePath)
		}
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records, err := client.ListAll(context.Background(), "t-abc")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(records) != 2 || records[0].Identity != "rec1" || records[1].SourcePath != "/v/b.mp4" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls.Load())
	}
}

func TestListAllPageFailureIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":91402,"msg":"NOTEXIST"}`)
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.ListAll(context.Background(), "t-abc"); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestUpdateByIdentityBusinessRejectionReturnsFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1254043,"msg":"RecordIdNotFound"}`)
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := client.UpdateByIdentity(context.Background(), "t-abc", "recGone", map[string]any{"f": "v"})
	if err != nil {
		t.Fatalf("UpdateByIdentity: %v", err)
	}
	if ok {
		t.Fatal("expected rejection to return false")
	}
}

func TestUpdateByIdentityRejectsMalformedIdentityLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected for malformed identity")
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := client.UpdateByIdentity(context.Background(), "t-abc", "bogus-id", nil)
	if err != nil || ok {
		t.Fatalf("expected local rejection, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateByIdentityCleansIdentityBeforeSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Records []struct {
				RecordID string `json:"record_id"`
			} `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Records) != 1 || body.Records[0].RecordID != "recAbc123" {
			t.Errorf("unexpected record ids: %+v", body.Records)
		}
		fmt.Fprint(w, `{"code":0,"msg":"success"}`)
	}))
	defer server.Close()

	client, err := bitable.New(storeConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := client.UpdateByIdentity(context.Background(), "t-abc", " rec-Abc 123\n", map[string]any{"f": "v"})
	if err != nil || !ok {
		t.Fatalf("expected successful write, got ok=%v err=%v", ok, err)
	}
}
