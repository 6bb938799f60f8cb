package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shenikar/rescue_dispatch_system/internal/llmtext"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrDisabled - ключ API не задан, все вызовы завершаются ошибкой и уходят в fallback
var ErrDisabled = errors.New("AI collaborator is not configured")

const maxErrorBody = 512

// Client - HTTP-клиент генеративной модели (REST generateContent)
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient создает клиент генеративной модели
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Classify запрашивает черновой анализ обращения, ответ - сырой JSON-текст модели
func (c *Client) Classify(ctx context.Context, location, description string) (string, error) {
	return c.generate(ctx, classifyPrompt(location, description))
}

// ActionPlan запрашивает текстовый план действий по одному инциденту
func (c *Client) ActionPlan(ctx context.Context, incident *models.Incident) (string, error) {
	payload, err := json.MarshalIndent(incident, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal incident for action plan: %w", err)
	}
	return c.generate(ctx, actionPlanPrompt(string(payload)))
}

type planStop struct {
	Location string   `json:"location"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Reason   string   `json:"reason"`
}

type planPayload struct {
	Summary   string     `json:"summary"`
	Route     []planStop `json:"route"`
	Resources []string   `json:"resources"`
}

type planIncident struct {
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Severity    string   `json:"severity"`
	Type        string   `json:"incident_type"`
	Description string   `json:"description"`
}

// PlanDispatch запрашивает сводный план выезда по пакету инцидентов бригады
func (c *Client) PlanDispatch(ctx context.Context, incidents []*models.Incident) (models.Plan, error) {
	items := make([]planIncident, 0, len(incidents))
	for _, inc := range incidents {
		items = append(items, planIncident{
			Location:    inc.Location,
			Lat:         inc.Latitude,
			Lng:         inc.Longitude,
			Severity:    string(inc.Analysis.Severity),
			Type:        string(inc.Analysis.IncidentType),
			Description: inc.Description,
		})
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to marshal incidents for plan: %w", err)
	}

	raw, err := c.generate(ctx, dispatchPlanPrompt(string(payload)))
	if err != nil {
		return models.Plan{}, err
	}
	return ParsePlan(raw, incidents)
}

// ParsePlan разбирает JSON-план модели и сопоставляет точки маршрута инцидентам по адресу
func ParsePlan(raw string, incidents []*models.Incident) (models.Plan, error) {
	body := llmtext.StripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return models.Plan{}, fmt.Errorf("plan response is not a JSON object")
	}
	var p planPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return models.Plan{}, fmt.Errorf("failed to decode plan response: %w", err)
	}

	byLocation := make(map[string]*models.Incident, len(incidents))
	for _, inc := range incidents {
		key := strings.ToLower(strings.TrimSpace(inc.Location))
		if _, exists := byLocation[key]; !exists {
			byLocation[key] = inc
		}
	}

	plan := models.Plan{
		Summary:   strings.TrimSpace(p.Summary),
		Route:     make([]models.RouteStop, 0, len(p.Route)),
		Resources: p.Resources,
	}
	if plan.Resources == nil {
		plan.Resources = []string{}
	}
	for _, s := range p.Route {
		stop := models.RouteStop{
			Location:  s.Location,
			Latitude:  s.Lat,
			Longitude: s.Lng,
			Reason:    s.Reason,
		}
		if inc, ok := byLocation[strings.ToLower(strings.TrimSpace(s.Location))]; ok {
			id := inc.ID
			stop.IncidentID = &id
			if stop.Latitude == nil || stop.Longitude == nil {
				stop.Latitude, stop.Longitude = inc.Latitude, inc.Longitude
			}
		}
		plan.Route = append(plan.Route, stop)
	}
	return plan, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrDisabled
	}
	log := c.logger.WithFields(logrus.Fields{
		"component": "ai",
		"model":     c.model,
	})

	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error содержит полный адрес запроса, наружу отдаем только причину
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("generate request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generate response has no candidates")
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	log.WithField("elapsed", time.Since(start).String()).Debug("Generate request completed")
	return strings.TrimSpace(text.String()), nil
}
