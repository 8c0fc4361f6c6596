//go:build e2e

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/sajpe/visitgate/internal/handler/dto"
	"github.com/sajpe/visitgate/internal/repository"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// TestE2ESmoke drives a running server: a desktop redirect, a JSON visit,
// and, when DATABASE_URL is set, the persisted row written by the worker.
func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("VISITGATE_BASE_URL", "http://localhost:8080")

	if status := doJSON(t, http.MethodGet, baseURL+"/healthz", nil, nil); status != http.StatusOK {
		t.Fatalf("healthz returned %d", status)
	}

	assertRedirect(t, baseURL+"/b/r/202", "https://sajpebusiness.raavan.site/?code=202")

	var visit dto.VisitResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/visits", map[string]any{
		"path":       "/s/r/105",
		"permission": "denied",
	}, &visit)
	if status != http.StatusOK {
		t.Fatalf("create visit returned %d", status)
	}
	if visit.Record.ID == "" || visit.Record.Referral.Code != "105" {
		t.Fatalf("unexpected visit record: %+v", visit.Record)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Log("DATABASE_URL not set, skipping persistence check")
		return
	}
	waitForVisit(t, dbURL, visit.Record.ID)
}

func assertRedirect(t *testing.T, url, destination string) {
	t.Helper()

	client := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("create redirect request: %v", err)
	}
	req.Header.Set("User-Agent", desktopUA)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("redirect request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if location := resp.Header.Get("Location"); location != destination {
		t.Fatalf("expected Location %q, got %q", destination, location)
	}
}

func waitForVisit(t *testing.T, dbURL, visitID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()
	visits := repository.NewVisitRepository(repo)

	for ctx.Err() == nil {
		v, err := visits.GetByID(ctx, visitID)
		if err == nil {
			if v.ReferralCode == nil || *v.ReferralCode != "105" {
				t.Fatalf("unexpected persisted visit: %+v", v)
			}
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("get visit: %v", err)
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("visit %s was not persisted in time", visitID)
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("User-Agent", desktopUA)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.ContentLength != 0 {
			t.Fatalf("decode response: %s", fmt.Sprint(err))
		}
	}

	return resp.StatusCode
}
