package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fr0stylo/ciattest/internal/circleci"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "generator.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigSingleShot(t *testing.T) {
	path := writeConfig(t, "base_url: http://localhost:8000\nsecret: s3cret\njob_name: build-wasm\njob_number: 42\n")

	cfg, interval, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if interval != 0 {
		t.Fatalf("unexpected interval: %s", interval)
	}
	if cfg.WorkflowStatus != circleci.WorkflowStatusSuccess {
		t.Fatalf("unexpected default status: %s", cfg.WorkflowStatus)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing job number": "base_url: http://x\nsecret: s\njob_name: build\n",
		"bad interval":       "base_url: http://x\nsecret: s\njob_name: build\njob_number: 1\ninterval: soon\n",
		"negative interval":  "base_url: http://x\nsecret: s\njob_name: build\njob_number: 1\ninterval: -1s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := loadConfig(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, interval, err := loadConfig(writeConfig(t, "base_url: http://x\nsecret: s\njob_name: build\njob_number: 1\ninterval: 5s\n"))
	if err != nil || interval != 5*time.Second {
		t.Fatalf("unexpected result: interval=%s err=%v", interval, err)
	}
}

func TestBuildPayloadParses(t *testing.T) {
	body, deliveryID, err := buildPayload(config{JobName: "build-wasm", JobNumber: 42, WorkflowStatus: "success"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	event, err := circleci.ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if event.ID != deliveryID {
		t.Fatalf("unexpected delivery id: got=%s want=%s", event.ID, deliveryID)
	}
	if !event.IsSuccessfulJob("build-wasm") || event.JobNumber() != 42 {
		t.Fatalf("unexpected event: %+v", event)
	}
}
