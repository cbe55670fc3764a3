package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	DefaultModel  = "gemini-1.5-flash"
	maxHeadlines  = 30
	maxBriefRunes = 600
)

var ErrEmptyResponse = errors.New("empty response from Gemini")

// generator is the slice of the genai model the client needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	client *genai.Client
	model  generator
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0.3)
	return &Client{client: client, model: m}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Brief summarizes headlines in two or three plain sentences.
func (c *Client) Brief(ctx context.Context, headlines []string) (string, error) {
	if len(headlines) == 0 {
		return "", fmt.Errorf("no headlines to brief")
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(buildPrompt(headlines)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	brief, err := responseText(resp)
	if err != nil {
		return "", err
	}
	log.Debug().Int("headlines", len(headlines)).Int("runes", utf8.RuneCountInString(brief)).Msg("Gemini brief ready")
	return brief, nil
}

func buildPrompt(headlines []string) string {
	if len(headlines) > maxHeadlines {
		headlines = headlines[:maxHeadlines]
	}

	var b strings.Builder
	b.WriteString("You write the opening line of a news digest.\n")
	b.WriteString("Summarize the main themes of these headlines in two or three short sentences of plain text.\n")
	b.WriteString("Do not invent facts, do not use markdown, do not list the headlines again.\n\nHEADLINES:\n")
	for _, h := range headlines {
		b.WriteString("- ")
		b.WriteString(strings.Join(strings.Fields(h), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return cleanBrief(b.String())
}

// cleanBrief strips markdown emphasis, collapses whitespace and caps length.
func cleanBrief(s string) (string, error) {
	s = strings.NewReplacer("**", "", "__", "", "#", "", "`", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyResponse
	}
	if utf8.RuneCountInString(s) > maxBriefRunes {
		r := []rune(s)[:maxBriefRunes]
		s = strings.TrimSpace(string(r)) + "…"
	}
	return s, nil
}
