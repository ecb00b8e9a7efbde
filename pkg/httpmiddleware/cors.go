package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the methods permitted in actual requests. Empty
	// defaults to the common REST verbs.
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. When empty the
	// preflight echoes back Access-Control-Request-Headers.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers. The CORS
	// spec forbids combining credentials with the wildcard origin, so when
	// set the middleware always echoes the specific origin.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0".
	MaxAge int
}

// cors holds the precomputed header values for one CORS policy.
type cors struct {
	allowAll bool
	origins  map[string]string // lowercased origin -> configured spelling
	methods  string
	headers  string
	expose   string
	maxAge   string
	creds    bool
}

// CORS returns a middleware enforcing the given CORS policy, answering
// preflight requests itself with 204.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		allowAll: len(cfg.AllowOrigins) == 0,
		origins:  make(map[string]string, len(cfg.AllowOrigins)),
		methods:  strings.Join(cfg.AllowMethods, ", "),
		headers:  strings.Join(cfg.AllowHeaders, ", "),
		expose:   strings.Join(cfg.ExposeHeaders, ", "),
		creds:    cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.allowAll = true
			break
		}
		c.origins[strings.ToLower(o)] = o
	}
	if c.creds && c.allowAll {
		c.allowAll = false
	}
	if c.methods == "" {
		c.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	} else if cfg.MaxAge < 0 {
		c.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !c.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}

			if !c.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allow := c.match(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if c.creds {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if c.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", c.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	// Vary on every input the preflight answer depends on, or shared caches
	// will serve one client's answer to another.
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	allow := c.match(origin)
	if allow == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allow)
	w.Header().Set("Access-Control-Allow-Methods", c.methods)
	if c.headers != "" {
		w.Header().Set("Access-Control-Allow-Headers", c.headers)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		w.Header().Set("Access-Control-Allow-Headers", rh)
	}
	if c.creds {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		w.Header().Set("Access-Control-Max-Age", c.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

// match returns the Access-Control-Allow-Origin value, or "" when the origin
// is not allowed. Matching is case-insensitive; the configured spelling is
// echoed back.
func (c *cors) match(origin string) string {
	if c.allowAll {
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}
