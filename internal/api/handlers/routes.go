package handlers

import (
	"net/http"

	"github.com/clypser/finance-bot/internal/api/middleware"
	"github.com/clypser/finance-bot/internal/jobs"
	"github.com/rs/zerolog"
)

// NewRouter registers every endpoint on a new mux and wraps it in the
// standard middleware chain. Routes under /api/ require an account id.
func NewRouter(svc RecordsService, publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) http.Handler {
	recordsHandler := NewRecordsHandler(svc, log)
	accountHandler := NewAccountHandler(svc, log)
	messagesHandler := NewMessagesHandler(publisher, store, log)

	api := http.NewServeMux()

	// Records endpoints
	api.HandleFunc("POST /api/records", recordsHandler.CreateRecord)
	api.HandleFunc("GET /api/records", recordsHandler.ListRecords)
	api.HandleFunc("DELETE /api/records/{id}", recordsHandler.DeleteRecord)

	// Account endpoints
	api.HandleFunc("PUT /api/account", accountHandler.PutAccount)
	api.HandleFunc("GET /api/quota", accountHandler.GetQuota)

	// Async message endpoints
	api.HandleFunc("POST /api/messages", messagesHandler.EnqueueMessage)
	api.HandleFunc("GET /api/jobs", messagesHandler.ListJobs)
	api.HandleFunc("GET /api/jobs/{id}", messagesHandler.GetJob)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.AccountID(api))
	mux.HandleFunc("GET /health", Health)

	// Apply middleware
	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)
}
