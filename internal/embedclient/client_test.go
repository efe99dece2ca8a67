package embedclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wessley-grants/ingestor/internal/domain"
)

func TestHTTPClient_Embed(t *testing.T) {
	var gotTaskType, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotTaskType = req.TaskType
		if len(req.Content.Parts) > 0 {
			gotText = req.Content.Parts[0].Text
		}
		json.NewEncoder(w).Encode(embedResponse{
			Embedding: struct {
				Values []float32 `json:"values"`
			}{Values: []float32{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "embedding-001")
	vec, err := c.Embed(context.Background(), "resumen de la ayuda", domain.TaskRetrievalQuery)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
	if gotTaskType != string(domain.TaskRetrievalQuery) {
		t.Errorf("expected task_type %s, got %s", domain.TaskRetrievalQuery, gotTaskType)
	}
	if gotText != "resumen de la ayuda" {
		t.Errorf("expected the input text to be sent, got %q", gotText)
	}
}

func TestHTTPClient_Embed_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "embedding-001")
	_, err := c.Embed(context.Background(), "x", domain.TaskSemanticSimilarity)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestHTTPClient_Embed_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "embedding-001")
	_, err := c.Embed(context.Background(), "x", domain.TaskSemanticSimilarity)
	if !errors.Is(err, domain.ErrTransportError) {
		t.Errorf("expected ErrTransportError, got %v", err)
	}
}
