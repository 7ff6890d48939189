package auth

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/webstickynotes/websticky/pkg/logging"
)

// cookiesKey is the settings key the serialized jar lives under.
const cookiesKey = "session_cookies"

// CookieStore is the slice of the storage layer the jar needs.
type CookieStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}

// PersistentJar is a cookie jar that snapshots every write into the
// local store, so a signed-in session survives a daemon restart. The
// browser did this for the original extension; the daemon has to do it
// itself.
type PersistentJar struct {
	mu     sync.Mutex
	inner  http.CookieJar
	store  CookieStore
	saved  map[string][]storedCookie // keyed by scheme://host
	logger *logging.Logger
}

// NewPersistentJar builds a jar seeded from the store. A corrupt or
// missing snapshot just means starting signed out.
func NewPersistentJar(store CookieStore, logger *logging.Logger) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	j := &PersistentJar{
		inner:  inner,
		store:  store,
		saved:  make(map[string][]storedCookie),
		logger: logger,
	}
	j.restore()
	return j, nil
}

// SetCookies implements http.CookieJar, persisting the new state.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	// Merge by name: a response that sets one cookie must not erase the
	// rest of the host's snapshot (the session cookie in particular).
	key := u.Scheme + "://" + u.Host
	merged := j.saved[key]
	for _, c := range cookies {
		idx := -1
		for i, s := range merged {
			if s.Name == c.Name {
				idx = i
				break
			}
		}
		expired := c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now()))
		if expired {
			if idx >= 0 {
				merged = append(merged[:idx], merged[idx+1:]...)
			}
			continue
		}
		s := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if idx >= 0 {
			merged[idx] = s
		} else {
			merged = append(merged, s)
		}
	}
	j.saved[key] = merged
	j.persistLocked()
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

func (j *PersistentJar) restore() {
	if j.store == nil {
		return
	}
	raw, err := j.store.GetSetting(cookiesKey)
	if err != nil || raw == "" {
		return
	}
	var saved map[string][]storedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		j.logger.Warn(logging.CategoryStorage, "cookies.corrupt", "discarding unreadable cookie snapshot", map[string]any{"error": err.Error()})
		return
	}

	j.saved = saved
	for key, stored := range saved {
		u, err := url.Parse(key)
		if err != nil {
			continue
		}
		cookies := make([]*http.Cookie, 0, len(stored))
		for _, c := range stored {
			cookies = append(cookies, &http.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				Domain:   c.Domain,
				Expires:  c.Expires,
				Secure:   c.Secure,
				HttpOnly: c.HTTPOnly,
			})
		}
		j.inner.SetCookies(u, cookies)
	}
}

func (j *PersistentJar) persistLocked() {
	if j.store == nil {
		return
	}
	data, err := json.Marshal(j.saved)
	if err != nil {
		return
	}
	if err := j.store.SetSetting(cookiesKey, string(data)); err != nil {
		j.logger.Warn(logging.CategoryStorage, "cookies.persist", "failed to persist cookie snapshot", map[string]any{"error": err.Error()})
	}
}
