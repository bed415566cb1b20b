// routes/routes.go
package routes

import (
	"net/http"

	"go-cartsync/controllers"
	"go-cartsync/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(router *mux.Router, guests middleware.GuestResolver, userController *controllers.UserController, guestController *controllers.GuestController, cartController *controllers.CartController) {
	// Public routes
	router.HandleFunc("/register", userController.Register).Methods("POST")
	router.HandleFunc("/login", userController.Login).Methods("POST")
	router.HandleFunc("/guest/sessions", guestController.CreateSession).Methods("POST")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Protected routes
	protected := router.PathPrefix("/profile").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("", userController.GetProfile).Methods("GET")

	// Cart routes, for users and guests alike
	cart := router.PathPrefix("/cart").Subrouter()
	cart.Use(middleware.OwnerMiddleware(guests))
	cart.HandleFunc("", cartController.GetCart).Methods("GET")
	cart.HandleFunc("/items", cartController.AddItem).Methods("POST")
	cart.HandleFunc("/items/{variant_id}", cartController.UpdateItem).Methods("PUT")
	cart.HandleFunc("/items/{variant_id}", cartController.RemoveItem).Methods("DELETE")
	cart.HandleFunc("/items/{variant_id}/restore", cartController.RestoreItem).Methods("POST")
	cart.HandleFunc("/sync", cartController.Sync).Methods("POST")
	cart.HandleFunc("/merge", cartController.Merge).Methods("POST")

	carts := router.PathPrefix("/carts").Subrouter()
	carts.Use(middleware.OwnerMiddleware(guests))
	carts.HandleFunc("/{id}/validate", cartController.Validate).Methods("POST")
}
