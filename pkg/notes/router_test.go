package notes

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
)

// fakeAuth flips authentication state between calls.
type fakeAuth struct {
	authenticated bool
}

func (f *fakeAuth) IsAuthenticated(ctx context.Context) bool { return f.authenticated }

// recordingBackend counts which operations reached it.
type recordingBackend struct {
	name  string
	calls []string
}

func (b *recordingBackend) List(ctx context.Context, filter ListFilter) ([]Note, error) {
	b.calls = append(b.calls, "list")
	return nil, nil
}

func (b *recordingBackend) Create(ctx context.Context, note Note) (Note, error) {
	b.calls = append(b.calls, "create")
	note.ID = b.name + "-id"
	return note, nil
}

func (b *recordingBackend) Update(ctx context.Context, note Note) (Note, error) {
	b.calls = append(b.calls, "update")
	return note, nil
}

func (b *recordingBackend) Delete(ctx context.Context, id string) error {
	b.calls = append(b.calls, "delete")
	return nil
}

func TestRouterPicksBackendByAuthState(t *testing.T) {
	auth := &fakeAuth{}
	remote := &recordingBackend{name: "remote"}
	local := &recordingBackend{name: "local"}
	router := NewRouter(auth, remote, local, nil)
	ctx := context.Background()

	auth.authenticated = true
	created, err := router.Create(ctx, Note{Title: "A"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "remote-id" {
		t.Errorf("authenticated create should hit remote, got id %q", created.ID)
	}
	if len(local.calls) != 0 {
		t.Errorf("local backend should be untouched, saw %v", local.calls)
	}

	auth.authenticated = false
	created, err = router.Create(ctx, Note{Title: "B"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "local-id" {
		t.Errorf("unauthenticated create should hit local, got id %q", created.ID)
	}
}

func TestRouterChecksAuthPerCall(t *testing.T) {
	auth := &fakeAuth{authenticated: true}
	remote := &recordingBackend{name: "remote"}
	local := &recordingBackend{name: "local"}
	router := NewRouter(auth, remote, local, nil)
	ctx := context.Background()

	router.List(ctx, ListFilter{})
	auth.authenticated = false // logout between calls
	router.List(ctx, ListFilter{})
	router.Delete(ctx, "x")
	auth.authenticated = true // login again
	router.Update(ctx, Note{ID: "x"})

	if got := len(remote.calls); got != 2 {
		t.Errorf("remote saw %d calls (%v), want 2", got, remote.calls)
	}
	if got := len(local.calls); got != 2 {
		t.Errorf("local saw %d calls (%v), want 2", got, local.calls)
	}
}

type failingBackend struct{ recordingBackend }

func (b *failingBackend) Create(ctx context.Context, note Note) (Note, error) {
	return Note{}, context.DeadlineExceeded
}

func TestRouterDoesNotFallBackOnError(t *testing.T) {
	auth := &fakeAuth{authenticated: true}
	remote := &failingBackend{}
	local := &recordingBackend{name: "local"}
	router := NewRouter(auth, remote, local, nil)

	_, err := router.Create(context.Background(), Note{Title: "A"})
	if err == nil {
		t.Fatal("remote failure must surface, not vanish")
	}
	if len(local.calls) != 0 {
		t.Errorf("a remote error must not silently reroute to local, saw %v", local.calls)
	}
}

// newSeedJar builds a jar holding an ambient session cookie for base.
func newSeedJar(t *testing.T, base string) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "ambient"}})
	return jar
}
