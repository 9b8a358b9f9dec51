// Package health reports the reachability of the database, the attachment
// store and the identity service.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"
)

const probeTimeout = 3 * time.Second

var errNotConfigured = errors.New("not configured")

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StorageProbe checks the attachment bucket.
type StorageProbe interface {
	Ready(ctx context.Context) error
}

// IdentityProbe checks the identity service and reports its version.
type IdentityProbe interface {
	Ping(ctx context.Context) (string, error)
}

// Status is the health endpoint body.
type Status struct {
	Status      string  `json:"status"`
	Version     string  `json:"version"`
	MinioOK     bool    `json:"minio_ok"`
	DBOK        bool    `json:"db_ok"`
	LDAPOK      bool    `json:"ldap_ok"`
	LDAPVersion *string `json:"ldap_version"`
	Time        string  `json:"time"`
}

// Checker runs the probes. Nil probes count as down.
type Checker struct {
	Version  string
	DB       Pinger
	Storage  StorageProbe
	Identity IdentityProbe
	DSN      string // masked, logged by the debug endpoint

	now func() time.Time
}

type result struct {
	ok      bool
	version string
	err     error
}

func probe(ctx context.Context, fn func(context.Context) (string, error)) result {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	v, err := fn(ctx)
	return result{ok: err == nil, version: v, err: err}
}

// Aggregate folds the probe outcomes into ok, degraded or down.
func Aggregate(checks ...bool) string {
	up := 0
	for _, ok := range checks {
		if ok {
			up++
		}
	}
	switch {
	case up == len(checks):
		return "ok"
	case up > 0:
		return "degraded"
	}
	return "down"
}

func (c *Checker) run(ctx context.Context) (Status, map[string]result) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]result, 3)
	)
	launch := func(name string, fn func(context.Context) (string, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := probe(ctx, fn)
			mu.Lock()
			results[name] = r
			mu.Unlock()
		}()
	}

	launch("db", func(ctx context.Context) (string, error) {
		if c.DB == nil {
			return "", errNotConfigured
		}
		return "", c.DB.PingContext(ctx)
	})
	launch("minio", func(ctx context.Context) (string, error) {
		if c.Storage == nil {
			return "", errNotConfigured
		}
		return "", c.Storage.Ready(ctx)
	})
	launch("ldap", func(ctx context.Context) (string, error) {
		if c.Identity == nil {
			return "", errNotConfigured
		}
		return c.Identity.Ping(ctx)
	})
	wg.Wait()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	st := Status{
		Version: c.Version,
		DBOK:    results["db"].ok,
		MinioOK: results["minio"].ok,
		LDAPOK:  results["ldap"].ok,
		Time:    now().Format(time.RFC3339),
	}
	if v := results["ldap"].version; v != "" {
		st.LDAPVersion = &v
	}
	st.Status = Aggregate(st.MinioOK, st.DBOK, st.LDAPOK)
	return st, results
}

// Handler serves GET /health.
func (c *Checker) Handler(w http.ResponseWriter, r *http.Request) {
	st, _ := c.run(r.Context())
	writeJSON(w, st)
}

// DebugHandler serves GET /health/debug. The details stay in the server log.
func (c *Checker) DebugHandler(w http.ResponseWriter, r *http.Request) {
	st, results := c.run(r.Context())
	log.Printf("Health debug: status=%s dsn=%s", st.Status, c.DSN)
	for _, name := range []string{"db", "minio", "ldap"} {
		res := results[name]
		if res.err != nil {
			log.Printf("Health debug: %s down: %v", name, res.err)
			continue
		}
		log.Printf("Health debug: %s up version=%q", name, res.version)
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}
