package apiclient

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/PicoHBK/clubnorte/storage"
	"github.com/rs/zerolog"
)

// DefaultCookieKey is the storage key the persistent jar writes to.
const DefaultCookieKey = "api-cookies"

const jarWriteTimeout = 5 * time.Second

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PersistentJar is a cookie jar whose cookies for the API origin survive
// process restarts. Only name/value pairs are kept; the server stays the
// authority on expiry and answers 401 for stale cookies.
type PersistentJar struct {
	inner  *cookiejar.Jar
	origin *url.URL
	store  storage.Storage
	key    string
	logger zerolog.Logger
	lock   sync.Mutex

	// writes serialises storage writes; seq orders them so an older
	// cookie set never lands after a newer one.
	writes sync.Mutex
	seq    uint64
}

var _ http.CookieJar = (*PersistentJar)(nil)

// NewPersistentJar loads previously saved cookies for baseURL from store.
func NewPersistentJar(ctx context.Context, baseURL string, store storage.Storage, key string, logger zerolog.Logger) (*PersistentJar, error) {
	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewPersistentJar] parse base url")
	}
	inner, err := NewJar()
	if err != nil {
		return nil, errors.Wrapf(err, "[NewPersistentJar] cookie jar")
	}
	if key == "" {
		key = DefaultCookieKey
	}
	j := &PersistentJar{
		inner:  inner,
		origin: &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"},
		store:  store,
		key:    key,
		logger: logger,
	}

	var saved []storedCookie
	if _, err := storage.GetJSON(ctx, store, key, &saved); err != nil {
		return nil, errors.Wrapf(err, "[NewPersistentJar] load cookies")
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	if len(cookies) > 0 {
		j.inner.SetCookies(j.origin, cookies)
	}
	return j, nil
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.inner.Cookies(u)
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.lock.Lock()
	j.inner.SetCookies(u, cookies)
	if u.Host != j.origin.Host {
		j.lock.Unlock()
		return
	}
	current := j.inner.Cookies(j.origin)
	saved := make([]storedCookie, 0, len(current))
	for _, c := range current {
		saved = append(saved, storedCookie{Name: c.Name, Value: c.Value})
	}
	j.seq++
	seq := j.seq
	j.lock.Unlock()

	j.writes.Lock()
	defer j.writes.Unlock()
	if !j.isLatest(seq) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jarWriteTimeout)
	defer cancel()
	if err := storage.SetJSON(ctx, j.store, j.key, saved); err != nil {
		j.logger.Warn().Err(err).Str("key", j.key).Msg("Failed to persist cookies")
	}
}

func (j *PersistentJar) isLatest(seq uint64) bool {
	j.lock.Lock()
	defer j.lock.Unlock()
	return seq == j.seq
}

// Clear forgets every saved cookie for the API origin.
func (j *PersistentJar) Clear(ctx context.Context) error {
	inner, err := NewJar()
	if err != nil {
		return err
	}
	j.lock.Lock()
	j.inner = inner
	j.seq++
	j.lock.Unlock()

	j.writes.Lock()
	defer j.writes.Unlock()
	return j.store.Delete(ctx, j.key)
}
