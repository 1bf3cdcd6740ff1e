// Package llm writes an optional plain-language note about a gate verdict
// using the Anthropic API. The note is advisory and never feeds back into
// the decision.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/reviewgate/internal/gate"
	"github.com/joescharf/reviewgate/internal/models"
)

// DefaultModel is used when anthropic.model is not configured.
const DefaultModel = "claude-sonnet-4-5"

// maxPromptFindings caps how many findings are sent to the model.
const maxPromptFindings = 50

// VerdictNote is the model's explanation of a verdict for a PR comment or
// CI log.
type VerdictNote struct {
	Headline    string   `json:"headline"`
	Explanation string   `json:"explanation"`
	NextSteps   []string `json:"next_steps"`
}

// Client wraps the Anthropic API for verdict summaries.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model. Extra
// request options (base URL, retries) are passed to the SDK.
func NewClient(apiKey, model string, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSummaryPrompt constructs the system and user prompts for a verdict note.
func buildSummaryPrompt(cs models.ChangeSet, findings []models.Finding, verdict models.Verdict, cfg models.GateConfig) (system string, user string) {
	system = `You explain the outcome of an automated code review gate to the author of a change. Return ONLY a JSON object with these fields:
- "headline": one sentence stating the verdict and the main reason
- "explanation": 2-4 sentences describing what the blocking findings have in common, or why the run was inconclusive
- "next_steps": an array of short, concrete actions for the author (at most 5)

Rules:
- Never contradict the verdict; you are describing it, not deciding it
- Refer to findings by file and line when available
- If the verdict is PASS, keep next_steps to optional improvements or an empty array
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Change-set: %s\n", cs.String())
	if ref := cs.Reference(); ref != "" {
		fmt.Fprintf(&sb, "Reference: %s\n", ref)
	}
	fmt.Fprintf(&sb, "Verdict: %s\n", verdict.Status)
	if verdict.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", verdict.Reason)
	}
	fmt.Fprintf(&sb, "Blocking severities: %s\n", models.JoinSeverities(cfg.BlockingSeverities()))

	if len(findings) > 0 {
		sb.WriteString("\nFindings:\n")
		for i, f := range findings {
			if i == maxPromptFindings {
				fmt.Fprintf(&sb, "... and %d more\n", len(findings)-maxPromptFindings)
				break
			}
			sb.WriteString("- ")
			sb.WriteString(gate.FormatFinding(f))
			sb.WriteString("\n")
		}
	}
	user = sb.String()
	return
}

// SummarizeVerdict asks the model for a note about verdict. report may be nil
// when the reviewer produced nothing.
func (c *Client) SummarizeVerdict(ctx context.Context, cs models.ChangeSet, report *models.FindingsReport, verdict models.Verdict, cfg models.GateConfig) (*VerdictNote, error) {
	var findings []models.Finding
	if report != nil {
		findings = report.Findings()
	}
	systemPrompt, userPrompt := buildSummaryPrompt(cs, findings, verdict, cfg)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	text = stripFences(text)
	var note VerdictNote
	if err := json.Unmarshal([]byte(text), &note); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &note, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
