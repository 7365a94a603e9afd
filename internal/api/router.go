package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/commerce-core/internal/api/middleware"
	"github.com/example/commerce-core/internal/auth"
	"github.com/example/commerce-core/internal/domain/session"
)

// NewRouter wires the HTTP surface. Order and session routes require a live
// session; login is the only unauthenticated route.
func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService, sessions *session.Service) http.Handler {
	mux := http.NewServeMux()
	requireAuth := middleware.AuthMiddleware(jwtService, sessions)

	// Auth
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Login(w, r)
	})

	mux.Handle("/auth/logout", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Logout(w, r)
	})))

	mux.Handle("/auth/sessions", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Sessions(w, r)
	})))

	mux.Handle("/auth/me", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Me(w, r)
	})))

	// Orders
	mux.Handle("/orders", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrders(w, r)
		case http.MethodPost:
			handlers.CreateOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/orders/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, "/orders/number/") && r.Method == http.MethodGet:
			handlers.GetOrderByNumber(w, r)
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
			handlers.CancelOrder(w, r)
		case strings.HasSuffix(path, "/payment") && r.Method == http.MethodPost:
			handlers.RecordPayment(w, r)
		case strings.HasSuffix(path, "/items/status") && r.Method == http.MethodPatch:
			handlers.BulkUpdateItemStatus(w, r)
		case strings.Contains(path, "/items/") && strings.HasSuffix(path, "/status") && r.Method == http.MethodPatch:
			handlers.UpdateOrderItemStatus(w, r)
		case strings.HasSuffix(path, "/status") && r.Method == http.MethodPatch:
			handlers.UpdateOrderStatus(w, r)
		case r.Method == http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Health
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
