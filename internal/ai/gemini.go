// Package ai answers user questions through the Gemini API.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// instructionPrefix is prepended to every prompt so answers stay readable
// for non-technical users.
const instructionPrefix = "Answer in simple, plain English. No bullet points, no technical jargon.\n\n"

// ErrEmptyRequest is returned when neither a prompt nor a file is given.
var ErrEmptyRequest = errors.New("prompt or file required")

type Config struct {
	APIKey string
	Model  string
}

// Client proxies prompts, optionally grounded on a PDF, to Gemini.
type Client struct {
	genai *genai.Client
	model string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{genai: gc, model: cfg.Model}, nil
}

// Answer sends a single-turn request and returns the model's text. No
// conversation state is kept between calls.
func (c *Client) Answer(ctx context.Context, prompt, fileURL string) (string, error) {
	parts, err := buildParts(prompt, fileURL)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// buildParts assembles the request parts. The instruction prefix always
// rides along so a file-only question still gets a plain-English answer.
func buildParts(prompt, fileURL string) ([]*genai.Part, error) {
	prompt = strings.TrimSpace(prompt)
	fileURL = strings.TrimSpace(fileURL)
	if prompt == "" && fileURL == "" {
		return nil, ErrEmptyRequest
	}

	parts := []*genai.Part{genai.NewPartFromText(instructionPrefix + prompt)}
	if fileURL != "" {
		parts = append(parts, genai.NewPartFromURI(fileURL, "application/pdf"))
	}
	return parts, nil
}
