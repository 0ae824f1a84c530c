package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Reservations *ReservationHandler
	Resources    *ResourceHandler
	Users        *UserHandler
	Health       http.Handler
	Events       http.Handler
	Metrics      http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Resources != nil {
		mux.HandleFunc("/resources", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Resources.List(w, r)
			case http.MethodPost:
				cfg.Resources.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/resources/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/resources/"))
			if id == "" {
				http.NotFound(w, r)
				return
			}
			switch sub {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Resources.Get(w, r, id)
				case http.MethodPut:
					cfg.Resources.Update(w, r, id)
				case http.MethodDelete:
					cfg.Resources.Delete(w, r, id)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case "availability":
				if cfg.Reservations == nil {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Reservations.Availability(w, r, id)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Reservations != nil {
		mux.HandleFunc("/reservations", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Reservations.List(w, r)
			case http.MethodPost:
				cfg.Reservations.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/reservations/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/reservations/"))
			if id == "" || sub != "" {
				http.NotFound(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet:
				cfg.Reservations.Get(w, r, id)
			case http.MethodPut:
				cfg.Reservations.Update(w, r, id)
			case http.MethodDelete:
				cfg.Reservations.Delete(w, r, id)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		})
	}

	if cfg.Users != nil {
		mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Users.List(w, r)
		})
		mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/users/"))
			if id == "" || sub != "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Users.Delete(w, r, id)
		})
	}

	if cfg.Events != nil {
		mux.Handle("/events", getOnly(cfg.Events))
	}
	if cfg.Metrics != nil {
		mux.Handle("/metrics", getOnly(cfg.Metrics))
	}
	if cfg.Health != nil {
		mux.Handle("/healthz", getOnly(cfg.Health))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

// splitPath splits "id/rest" into its first segment and the remainder.
func splitPath(path string) (string, string) {
	path = strings.Trim(path, "/")
	id, rest, _ := strings.Cut(path, "/")
	return id, rest
}

func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
