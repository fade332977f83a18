// Package ollama wraps the official Ollama API client for the locally
// served model sources. One shared OllamaService backs every local chat
// and embedding model the container constructs.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/climatequery/engine/internal/logger"
	"github.com/ollama/ollama/api"
)

// OllamaService is the shared binding to one Ollama daemon. When the
// daemon is marked optional (OLLAMA_OPTIONAL=true) its absence degrades to
// warnings so a deployment with only remote models still boots.
type OllamaService struct {
	client      *api.Client
	baseURL     string
	mu          sync.Mutex
	isAvailable bool
	isOptional  bool
}

// GetOllamaService constructs the service from OLLAMA_BASE_URL, defaulting
// to the daemon's standard local port.
func GetOllamaService() (*OllamaService, error) {
	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_BASE_URL"); envURL != "" {
		baseURL = envURL
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama service URL: %w", err)
	}

	isOptional := os.Getenv("OLLAMA_OPTIONAL") == "true"
	if isOptional {
		logger.GetLogger(context.Background()).Info("ollama service running in optional mode")
	}

	return &OllamaService{
		client:     api.NewClient(parsedURL, http.DefaultClient),
		baseURL:    baseURL,
		isOptional: isOptional,
	}, nil
}

// StartService heartbeats the daemon and records availability. An
// unavailable daemon is an error unless the service is optional.
func (s *OllamaService) StartService(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Heartbeat(ctx); err != nil {
		logger.GetLogger(ctx).Warnf("ollama service unavailable: %v", err)
		s.isAvailable = false
		if s.isOptional {
			return nil
		}
		return fmt.Errorf("ollama service unavailable: %w", err)
	}

	s.isAvailable = true
	return nil
}

// IsAvailable reports the last observed daemon availability.
func (s *OllamaService) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAvailable
}

// IsModelAvailable reports whether the named model is already present
// locally.
func (s *OllamaService) IsModelAvailable(ctx context.Context, modelName string) (bool, error) {
	if err := s.StartService(ctx); err != nil {
		return false, err
	}
	if !s.isAvailable && s.isOptional {
		return false, nil
	}

	listResp, err := s.client.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list local models: %w", err)
	}
	for _, model := range listResp.Models {
		if model.Name == modelName {
			return true, nil
		}
	}
	return false, nil
}

// PullModel downloads the named model if it isn't present, logging pull
// progress as it streams.
func (s *OllamaService) PullModel(ctx context.Context, modelName string) error {
	if err := s.StartService(ctx); err != nil {
		return err
	}
	if !s.isAvailable && s.isOptional {
		logger.GetLogger(ctx).Warnf("ollama unavailable, cannot pull model %s", modelName)
		return nil
	}

	available, err := s.IsModelAvailable(ctx, modelName)
	if err != nil {
		return err
	}
	if available {
		return nil
	}

	logger.GetLogger(ctx).Infof("pulling model %s", modelName)
	err = s.client.Pull(ctx, &api.PullRequest{Name: modelName}, func(progress api.ProgressResponse) error {
		if progress.Status != "" && progress.Total > 0 && progress.Completed > 0 {
			percentage := float64(progress.Completed) / float64(progress.Total) * 100
			logger.GetLogger(ctx).Infof("pull progress: %s (%.2f%%)", progress.Status, percentage)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull model %s: %w", modelName, err)
	}
	return nil
}

// EnsureModelAvailable pulls the model on first use if it isn't already
// local; in optional mode a missing daemon degrades to a warning.
func (s *OllamaService) EnsureModelAvailable(ctx context.Context, modelName string) error {
	if !s.IsAvailable() && s.isOptional {
		logger.GetLogger(ctx).Warnf("ollama unavailable, skipping availability check for %s", modelName)
		return nil
	}

	available, err := s.IsModelAvailable(ctx, modelName)
	if err != nil {
		if s.isOptional {
			return nil
		}
		return err
	}
	if !available {
		return s.PullModel(ctx, modelName)
	}
	return nil
}

// Chat runs one chat completion against the daemon.
func (s *OllamaService) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	if err := s.StartService(ctx); err != nil {
		return err
	}
	return s.client.Chat(ctx, req, fn)
}

// Embeddings computes embedding vectors for a batch of inputs.
func (s *OllamaService) Embeddings(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error) {
	if err := s.StartService(ctx); err != nil {
		return nil, err
	}
	return s.client.Embed(ctx, req)
}
