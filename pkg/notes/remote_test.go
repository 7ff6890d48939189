package notes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/webstickynotes/websticky/pkg/errors"
)

func TestRemoteList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/notes" {
			t.Errorf("got %s %s, want GET /notes", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("search"); got != "groceries" {
			t.Errorf("search = %q", got)
		}
		json.NewEncoder(w).Encode([]Note{{ID: "n1", Title: "Groceries"}})
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, srv.Client(), nil)
	result, err := client.List(context.Background(), ListFilter{Search: "groceries"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result) != 1 || result[0].ID != "n1" {
		t.Errorf("result = %v", result)
	}
}

func TestRemoteCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var in Note
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		in.ID = "server-assigned"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, srv.Client(), nil)
	created, err := client.Create(context.Background(), Note{Title: "A", Website: "example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "server-assigned" {
		t.Errorf("ID = %q", created.ID)
	}
	if created.Title != "A" {
		t.Errorf("Title = %q", created.Title)
	}
}

func TestRemoteUpdateRequiresID(t *testing.T) {
	client := NewRemoteClient("http://unused.test", http.DefaultClient, nil)
	_, err := client.Update(context.Background(), Note{Title: "no id"})
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("error = %v, want INVALID_INPUT", err)
	}
}

func TestRemoteDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		if got := r.URL.Query().Get("noteId"); got != "n9" {
			t.Errorf("noteId = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, srv.Client(), nil)
	if err := client.Delete(context.Background(), "n9"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestRemoteNonSuccessSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, srv.Client(), nil)
	_, err := client.List(context.Background(), ListFilter{})
	if !errors.IsCode(err, errors.ErrCodeRemoteRequest) {
		t.Fatalf("error = %v, want REMOTE_REQUEST", err)
	}

	werr := err.(*errors.Error)
	if werr.Context["status"] != http.StatusBadGateway {
		t.Errorf("error should carry the status, got %v", werr.Context)
	}
	if werr.Context["endpoint"] != "/notes" {
		t.Errorf("error should carry the endpoint, got %v", werr.Context)
	}
}

func TestRemoteAttachesCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		json.NewEncoder(w).Encode([]Note{})
	}))
	defer srv.Close()

	httpClient := srv.Client()
	jarClient := &http.Client{Transport: httpClient.Transport, Jar: newSeedJar(t, srv.URL)}

	client := NewRemoteClient(srv.URL, jarClient, nil)
	if _, err := client.List(context.Background(), ListFilter{}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if gotCookie != "ambient" {
		t.Errorf("cookie = %q, want ambient session cookie", gotCookie)
	}
}
