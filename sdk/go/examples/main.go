package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenAgent-Hub/sdk/go/agenthub"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agenthub.Token{AccessToken: "demo-token", TokenType: "Bearer", ExpiresIn: 900})
	})
	mux.HandleFunc("/api/v1/route", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agenthub.RouteResult{
			AgentID:    "billing",
			AgentName:  "Billing Support",
			Confidence: 0.91,
			Reply:      "Your invoice was issued on the first of the month.",
		})
	})
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(agenthub.Task{ID: "task-demo", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agenthub.Task{
			ID:     "task-demo",
			Status: "succeeded",
			Result: &agenthub.TaskResult{
				AgentID:    "tech",
				Confidence: 0.84,
				Reply:      "Restart the device and retry the pairing flow.",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := agenthub.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := client.Authenticate(ctx, agenthub.Credentials{Username: "demo", Password: "secret"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("authenticated with token %s\n", token.AccessToken)

	result, err := client.Route(ctx, agenthub.RouteRequest{
		UserID:    "demo",
		SessionID: "session-1",
		Input:     "when was my invoice issued?",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("routed to %s (confidence=%.2f): %s\n", result.AgentID, result.Confidence, result.Reply)

	created, err := client.SubmitTask(ctx, agenthub.TaskSubmission{
		UserID:    "demo",
		SessionID: "session-1",
		Input:     "my smart plug will not pair",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", created.ID, created.Status)

	detail, err := client.WaitForTask(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished with reply: %s\n", detail.ID, detail.Result.Reply)
}
