// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/sai-marketing/nps-admin-backend/internal/controller"
	"github.com/sai-marketing/nps-admin-backend/internal/db"
	"github.com/sai-marketing/nps-admin-backend/internal/handler"
	"github.com/sai-marketing/nps-admin-backend/internal/queue"
	"github.com/sai-marketing/nps-admin-backend/internal/repository"
	"github.com/sai-marketing/nps-admin-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()
	q := queue.NewInMemoryQueue()

	clientRepo := &repository.ClientRepository{DB: db.DB}
	responseRepo := &repository.ResponseRepository{DB: db.DB}

	dispatcher := service.NewWebhookDispatcher(os.Getenv("N8N_FORCE_URL"))
	poller := service.NewCompletionPoller(clientRepo)

	clientService := &service.ClientService{Repo: clientRepo}
	dispatchService := service.NewDispatchService(clientRepo, dispatcher, poller)

	queue.StartDispatchSubscriber(q, dispatchService)

	clientController := &controller.ClientController{
		ClientService: clientService,
	}
	dispatchController := &controller.DispatchController{
		ClientService:   clientService,
		DispatchService: dispatchService,
		Queue:           q,
	}
	responseController := &controller.ResponseController{
		Repo: responseRepo,
	}
	statusHandler := handler.NewStatusHandler(db.DB)

	r := chi.NewRouter()

	// Client routes
	r.Post("/clients", clientController.CreateClient)
	r.Get("/clients", clientController.ListClients)
	r.Get("/clients/{id}", clientController.GetClient)
	r.Put("/clients/{id}", clientController.UpdateClient)
	r.Post("/clients/{id}/active", clientController.SetActive)
	r.Post("/clients/{id}/force-eligible", clientController.ForceEligible)
	r.Post("/clients/import", clientController.ImportClients)

	// Dispatch routes
	r.Post("/clients/{id}/force-send", dispatchController.ForceSend)
	r.Post("/clients/{id}/dispatch", dispatchController.DispatchOne)
	r.Post("/dispatches/batch", dispatchController.DispatchBatch)
	r.Post("/dispatches/eligible", dispatchController.DispatchEligible)
	r.Post("/dispatches/enqueue", dispatchController.EnqueueBatch)

	// Response routes
	r.Get("/responses", responseController.ListResponses)
	r.Put("/responses/{id}", responseController.UpdateResponse)
	r.Delete("/responses/{id}", responseController.DeleteResponse)
	r.Get("/responses/stats", responseController.NPSStats)

	// Diagnostics
	r.Get("/health", statusHandler.Health)
	r.Get("/status/config", statusHandler.Config)

	log.Println("🚀 Server running on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
