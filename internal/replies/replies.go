// Package replies turns a mention's text into reply text: weather lookups,
// zodiac vibes, fortunes, a GenAI freeform fallback, and the daily greeting.
//
// Reply generation is deliberately forgiving: a failed weather lookup or
// GenAI call degrades to a canned line rather than an error, so a mention is
// never left unanswered because a presentation dependency hiccupped.
package replies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/CastPipe/internal/models"
)

// DefaultWeatherBaseURL is the weatherapi.com endpoint.
const DefaultWeatherBaseURL = "https://api.weatherapi.com"

// Generator produces freeform reply text when no canned intent matches.
// Satisfied by genai.Client.
type Generator interface {
	GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const freeformSystemPrompt = "You are Aiyra, a gentle dreamy Farcaster bot. " +
	"Reply to the mention in one or two soft sentences. Keep it under 280 characters."

// Opts holds responder configuration.
type Opts struct {
	WeatherAPIKey  string
	WeatherBaseURL string
	HTTPClient     *http.Client
	Generator      Generator
}

// Option configures the responder.
type Option func(*Opts)

// WithWeatherAPIKey sets the weatherapi.com key; without it weather requests
// get the canned apology line.
func WithWeatherAPIKey(key string) Option {
	return func(o *Opts) { o.WeatherAPIKey = key }
}

// WithWeatherBaseURL overrides the weather API endpoint (used in tests).
func WithWeatherBaseURL(url string) Option {
	return func(o *Opts) { o.WeatherBaseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = hc }
}

// WithGenerator sets the freeform GenAI generator.
func WithGenerator(g Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// Responder classifies mention intent and produces reply text.
type Responder struct {
	weatherKey string
	weatherURL string
	hc         *http.Client
	gen        Generator
}

// NewResponder creates a responder.
func NewResponder(opts ...Option) *Responder {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.WeatherBaseURL == "" {
		cfg.WeatherBaseURL = DefaultWeatherBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Responder{
		weatherKey: cfg.WeatherAPIKey,
		weatherURL: cfg.WeatherBaseURL,
		hc:         cfg.HTTPClient,
		gen:        cfg.Generator,
	}
}

var locationPattern = regexp.MustCompile(`(?i)weather (?:in|at|for) ([^.!?,]+)`)

// ExtractLocation pulls the location out of a "weather in X" request, or ""
// if the text is not a weather request.
func ExtractLocation(text string) string {
	match := locationPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// ReplyTo generates reply text for a mention. It never fails: every intent
// has a canned degradation path.
func (r *Responder) ReplyTo(ctx context.Context, m models.Mention) (string, error) {
	text := strings.ToLower(m.Text)

	if location := ExtractLocation(text); location != "" {
		return r.weatherWhisper(ctx, location), nil
	}
	if strings.Contains(text, "zodiac") || strings.Contains(text, "horoscope") {
		if sign := ExtractZodiacSign(text); sign != "" {
			return ZodiacVibe(sign), nil
		}
		return "Tell me your sign, and I'll read the stars for you ✨", nil
	}
	if strings.Contains(text, "fortune") || strings.Contains(text, "tell me something") {
		return FortuneBloom(), nil
	}
	if r.gen != nil {
		reply, err := r.gen.GenerateReply(ctx, freeformSystemPrompt, m.Text)
		if err != nil {
			slog.Warn("Responder.ReplyTo: freeform generation failed, using default line", "error", err)
			return defaultReply, nil
		}
		return reply, nil
	}
	return defaultReply, nil
}

// weatherWhisper fetches current conditions and wraps them in one of the
// canned templates.
func (r *Responder) weatherWhisper(ctx context.Context, location string) string {
	if r.weatherKey == "" {
		slog.Debug("Responder.weatherWhisper: no weather API key configured")
		return weatherShyLine
	}
	endpoint := fmt.Sprintf("%s/v1/current.json?key=%s&q=%s", r.weatherURL, url.QueryEscape(r.weatherKey), url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return weatherShyLine
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		slog.Warn("Responder.weatherWhisper: weather request failed", "error", err, "location", location)
		return weatherShyLine
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Responder.weatherWhisper: weather API non-success", "status", resp.StatusCode, "location", location)
		return weatherShyLine
	}
	var payload struct {
		Current struct {
			TempC     float64 `json:"temp_c"`
			Condition struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Warn("Responder.weatherWhisper: failed to decode weather response", "error", err)
		return weatherShyLine
	}

	condition := strings.ToLower(payload.Current.Condition.Text)
	templates := []string{
		fmt.Sprintf("%s is dancing with %s today — %.1f°C. A perfect moment for reflection ✨", location, condition, payload.Current.TempC),
		fmt.Sprintf("Gentle %s embraces %s, whispering at %.1f°C. Maybe it's time for a cozy adventure? 🌸", condition, location, payload.Current.TempC),
		fmt.Sprintf("The sky in %s is painting stories with %s at %.1f°C. What chapter will you write? ☁️", location, condition, payload.Current.TempC),
	}
	return templates[rand.Intn(len(templates))]
}
