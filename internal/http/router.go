package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	ImpactByAccount      http.HandlerFunc
	ImpactByConstruction http.HandlerFunc
	ImpactByDepartment   http.HandlerFunc
	RecordApproval       http.HandlerFunc
	IsApproved           http.HandlerFunc
	SessionStats         http.HandlerFunc
	SessionClear         http.HandlerFunc
	SessionImpact        http.HandlerFunc
	ImpactStream         http.HandlerFunc
	Health               http.HandlerFunc
}

// NewRouter registers endpoints. Everything under /api is wrapped by the
// provided middleware chain (auth, session resolution); /health is open.
func NewRouter(routes Routes, apiMiddleware func(http.Handler) http.Handler) http.Handler {
	api := http.NewServeMux()
	if routes.ImpactByAccount != nil {
		api.Handle("/api/budget/impact/account", method(http.MethodPost, routes.ImpactByAccount))
	}
	if routes.ImpactByConstruction != nil {
		api.Handle("/api/budget/impact/construction", method(http.MethodPost, routes.ImpactByConstruction))
	}
	if routes.ImpactByDepartment != nil {
		api.Handle("/api/budget/impact/department", method(http.MethodPost, routes.ImpactByDepartment))
	}
	if routes.RecordApproval != nil {
		api.Handle("/api/session/approvals", method(http.MethodPost, routes.RecordApproval))
	}
	if routes.IsApproved != nil {
		api.Handle("/api/session/approvals/{invoiceID}", method(http.MethodGet, routes.IsApproved))
	}
	if routes.SessionStats != nil {
		api.Handle("/api/session/stats", method(http.MethodGet, routes.SessionStats))
	}
	if routes.SessionClear != nil {
		api.Handle("/api/session", method(http.MethodDelete, routes.SessionClear))
	}
	if routes.SessionImpact != nil {
		api.Handle("/api/session/impact/account", method(http.MethodPost, routes.SessionImpact))
	}
	if routes.ImpactStream != nil {
		api.Handle("/api/session/impact/stream", method(http.MethodGet, routes.ImpactStream))
	}

	var apiHandler http.Handler = api
	if apiMiddleware != nil {
		apiHandler = apiMiddleware(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
