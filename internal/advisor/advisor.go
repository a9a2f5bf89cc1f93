package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRequest = errors.New("invalid recommendation request")
	ErrNotConfigured  = errors.New("advisor endpoint is not configured")
	ErrUpstream       = errors.New("recommendation service failed")
)

// Request describes the grid the user wants a method for.
type Request struct {
	BusCount             int    `json:"busCount" binding:"required"`
	NodeCount            int    `json:"nodeCount" binding:"required"`
	LineImpedancePattern string `json:"lineImpedancePattern" binding:"required"`
}

type Recommendation struct {
	Algorithm string `json:"algorithm"`
	Reasoning string `json:"reasoning"`
}

func (r Request) Validate() error {
	switch {
	case r.BusCount < 2:
		return fmt.Errorf("%w: at least 2 buses required", ErrInvalidRequest)
	case r.BusCount > 10000:
		return fmt.Errorf("%w: bus count too high", ErrInvalidRequest)
	case r.NodeCount < 2:
		return fmt.Errorf("%w: at least 2 nodes required", ErrInvalidRequest)
	case r.NodeCount > 10000:
		return fmt.Errorf("%w: node count too high", ErrInvalidRequest)
	}

	length := len([]rune(strings.TrimSpace(r.LineImpedancePattern)))
	if length < 5 {
		return fmt.Errorf("%w: please provide a brief impedance description", ErrInvalidRequest)
	}
	if length > 100 {
		return fmt.Errorf("%w: impedance description longer than 100 characters", ErrInvalidRequest)
	}
	return nil
}

// Advisor asks a text-generation service which method suits a grid. It
// never touches simulation state; failures are only returned to the caller.
type Advisor struct {
	config     config.AdvisorConfig
	registry   *loadflow.Registry
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewAdvisor(cfg config.AdvisorConfig, registry *loadflow.Registry, logger *logrus.Logger) *Advisor {
	return &Advisor{
		config:     cfg,
		registry:   registry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Advisor) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	if err := req.Validate(); err != nil {
		return Recommendation{}, err
	}
	if a.config.Endpoint == "" {
		return Recommendation{}, ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: a.prompt(req)}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return Recommendation{}, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(a.config.Endpoint, "/"), a.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Recommendation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", a.config.APIKey)
	}

	a.logger.Debugf("Advisor: requesting recommendation for %d buses / %d nodes", req.BusCount, req.NodeCount)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Recommendation{}, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	var generated generateResponse
	if err := json.Unmarshal(raw, &generated); err != nil {
		return Recommendation{}, fmt.Errorf("%w: status %d: %v", ErrUpstream, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		message := http.StatusText(resp.StatusCode)
		if generated.Error != nil {
			message = generated.Error.Message
		}
		return Recommendation{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, message)
	}

	if len(generated.Candidates) == 0 || len(generated.Candidates[0].Content.Parts) == 0 {
		return Recommendation{}, fmt.Errorf("%w: empty answer", ErrUpstream)
	}

	return parseRecommendation(generated.Candidates[0].Content.Parts[0].Text)
}

func parseRecommendation(text string) (Recommendation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var rec Recommendation
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &rec); err != nil {
		return Recommendation{}, fmt.Errorf("%w: answer is not a recommendation: %v", ErrUpstream, err)
	}
	if rec.Algorithm == "" {
		return Recommendation{}, fmt.Errorf("%w: answer names no algorithm", ErrUpstream)
	}
	return rec, nil
}

func (a *Advisor) prompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert in power systems engineering. Recommend the most suitable load flow algorithm ")
	b.WriteString("for the grid described below and explain the choice in two or three sentences.\n\n")
	b.WriteString("Candidate algorithms:\n")
	for _, d := range a.registry.Descriptors() {
		if d.Key == string(loadflow.InitialGuessKey) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s %s\n", d.Name, d.Description, d.Tradeoffs)
	}
	fmt.Fprintf(&b, "\nBus count: %d\nNode count: %d\nLine impedance pattern: %s\n\n",
		req.BusCount, req.NodeCount, strings.TrimSpace(req.LineImpedancePattern))
	b.WriteString(`Answer with JSON only: {"algorithm": "<name>", "reasoning": "<explanation>"}`)
	return b.String()
}
