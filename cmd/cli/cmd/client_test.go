package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeckClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "JSON error body", body: `{"error":"Namespace not found","code":"404"}`, message: "Namespace not found"},
		{name: "Plain body", body: "404 page not found\n", message: "404 page not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewDeckClient(server.URL, "").Workers("nope")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != tt.message {
				t.Errorf("unexpected error: %+v", apiErr)
			}
		})
	}
}

func TestDeckClient_SendsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"j1","status":"Pending"}`)
	}))
	defer server.Close()

	resp, err := NewDeckClient(server.URL+"/", "test-token").Push("orders", []byte(`{}`), 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "j1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestDeckClient_StreamEvents_MultiLineData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: first\ndata: second\n\n: comment\n\ndata:tight\n\n")
	}))
	defer server.Close()

	var events []string
	err := NewDeckClient(server.URL, "").StreamEvents(context.Background(), func(ev string) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0] != "first\nsecond" || events[1] != "tight" {
		t.Errorf("unexpected events: %q", events)
	}
}
