package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/fr0stylo/ciattest/internal/circleci"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, interval, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	if interval == 0 {
		if err := sendWebhook(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "webhook error:", err)
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sendWebhook(client, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "webhook error:", err)
		}
		<-ticker.C
	}
}

// loadConfig reads the YAML file. An empty interval means a single delivery.
func loadConfig(path string) (config, time.Duration, error) {
	if strings.TrimSpace(path) == "" {
		return config{}, 0, fmt.Errorf("config path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("workflow_status", circleci.WorkflowStatusSuccess)
	if err := v.ReadInConfig(); err != nil {
		return config{}, 0, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, 0, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.ProjectSlug = strings.TrimSpace(cfg.ProjectSlug)
	cfg.JobName = strings.TrimSpace(cfg.JobName)
	cfg.WorkflowStatus = strings.TrimSpace(cfg.WorkflowStatus)
	cfg.Interval = strings.TrimSpace(cfg.Interval)

	if cfg.BaseURL == "" || cfg.Secret == "" || cfg.JobName == "" || cfg.JobNumber <= 0 {
		return config{}, 0, fmt.Errorf("config must include base_url, secret, job_name, job_number")
	}
	if cfg.Interval == "" {
		return cfg, 0, nil
	}

	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return config{}, 0, fmt.Errorf("invalid interval duration: %w", err)
	}
	if interval <= 0 {
		return config{}, 0, fmt.Errorf("interval must be positive")
	}
	return cfg, interval, nil
}

func buildPayload(cfg config) ([]byte, string, error) {
	deliveryID := uuid.NewString()
	event := circleci.WebhookEvent{
		ID:         deliveryID,
		Type:       circleci.EventTypeJobCompleted,
		HappenedAt: time.Now().UTC().Format(time.RFC3339),
		Project:    &circleci.Project{Slug: cfg.ProjectSlug},
		Workflow:   &circleci.Workflow{ID: uuid.NewString(), Name: "build", Status: cfg.WorkflowStatus},
		Job: &circleci.Job{
			ID:     uuid.NewString(),
			Name:   cfg.JobName,
			Number: cfg.JobNumber,
			Status: cfg.WorkflowStatus,
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return body, deliveryID, nil
}

func sendWebhook(client *http.Client, cfg config) error {
	body, deliveryID, err := buildPayload(cfg)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(context.Background(), http.MethodPost, strings.TrimRight(cfg.BaseURL, "/")+"/webhook", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set(circleci.SignatureHeader, circleci.SignatureHeaderValue(cfg.Secret, body))
	request.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook failed: %s %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	fmt.Printf("Webhook status: %s (delivery %s)\n%s\n", resp.Status, deliveryID, strings.TrimSpace(string(payload)))
	return nil
}
