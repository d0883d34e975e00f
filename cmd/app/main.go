package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"bountyboard/config"
	"bountyboard/handlers"
	"bountyboard/realtime"
	"bountyboard/repository"
	"bountyboard/service"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()

	cfg := config.LoadConfigOrPanic()

	db := config.InitDB(ctx, cfg)
	defer func() { _ = db.Close() }()

	repoImpl := repository.NewPostgresRepository(db)
	if err := repoImpl.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload dir: %v", err)
	}

	hub := realtime.NewHub()

	svc := service.NewService(repoImpl, hub, cfg.JWTSecret)

	h := handlers.NewHandler(svc, cfg.JWTSecret, cfg.UploadDir)

	r := mux.NewRouter()
	r.HandleFunc("/api/register", h.RegisterHandler).Methods("POST")
	r.HandleFunc("/api/login", h.LoginHandler).Methods("POST")
	r.HandleFunc("/api/me", h.JWTMiddleware(h.MeHandler)).Methods("GET")
	r.HandleFunc("/api/bounties", h.ListBountiesHandler).Methods("GET")
	r.HandleFunc("/api/bounties", h.JWTMiddleware(h.CreateBountyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/apply", h.JWTMiddleware(h.ApplyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/applications", h.JWTMiddleware(h.ListApplicationsHandler)).Methods("GET")
	r.HandleFunc("/api/bounties/{id}/comments", h.JWTMiddleware(h.CreateCommentHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/comments", h.ListCommentsHandler).Methods("GET")
	r.HandleFunc("/api/bounties/{id}/complete", h.JWTMiddleware(h.CompleteBountyHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/upload", h.JWTMiddleware(h.UploadHandler)).Methods("POST")
	r.HandleFunc("/api/bounties/{id}/attachments", h.ListAttachmentsHandler).Methods("GET")
	r.HandleFunc("/api/transactions/me", h.JWTMiddleware(h.MyTransactionsHandler)).Methods("GET")
	r.Handle("/ws", hub)
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))),
	)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("public"))).Methods("GET")

	srv := http.Server{
		Handler:      r,
		Addr:         ":" + cfg.ServerPort,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	log.Printf("server listening on port %s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil {
		_ = db.Close()
		log.Fatal(err)
	}
}
