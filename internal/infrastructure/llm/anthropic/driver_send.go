package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"github.com/shells-above/swarmre/internal/domain/service"
)

var _ service.DriverLLMClient = (*Provider)(nil)

// Send implements service.DriverLLMClient: the typed-message transport the
// LLM Driver, Grader, and Consolidation Engine all call through. It carries
// cache_control breakpoints, thinking/redacted_thinking blocks, and
// interleaved-thinking support that the legacy Generate path (built for
// flat-string chat history) never needed.
func (p *Provider) Send(ctx context.Context, req service.DriverRequest) (*service.DriverResponse, error) {
	apiReq := p.buildDriverRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal driver request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create driver request: %w", err)
	}
	if err := p.setDriverHeaders(httpReq, req); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &service.DriverResponse{Success: false, Error: driverErrorText(resp.StatusCode, respBody)}, nil
	}

	return p.parseDriverResponse(respBody)
}

// driverErrorText surfaces the exact "OAuth token has expired" phrase the
// driver's retry loop pattern-matches on, when present, instead of burying
// it inside the raw response body.
func driverErrorText(status int, body []byte) string {
	var apiErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		if strings.Contains(strings.ToLower(apiErr.Error.Message), "oauth") {
			return "OAuth token has expired: " + apiErr.Error.Message
		}
		return fmt.Sprintf("Anthropic API error %d: %s", status, apiErr.Error.Message)
	}
	return fmt.Sprintf("Anthropic API error %d: %s", status, string(body))
}

func (p *Provider) setDriverHeaders(httpReq *http.Request, req service.DriverRequest) error {
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	betas := []string{}
	if req.EnableInterleavedThinking {
		betas = append(betas, "interleaved-thinking-2025-05-14")
	}

	if p.oauth != nil {
		token, err := p.oauth.AccessToken()
		if err != nil {
			return fmt.Errorf("oauth credential unavailable: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		betas = append(betas, oauthBeta)
	} else {
		httpReq.Header.Set("x-api-key", p.apiKey)
	}

	if len(betas) > 0 {
		httpReq.Header.Set("anthropic-beta", strings.Join(betas, ","))
	}
	return nil
}

func (p *Provider) buildDriverRequest(req service.DriverRequest) *Request {
	model := req.Model
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}

	apiReq := &Request{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = 8192
	}
	if req.EnableThinking && req.MaxThinkingTokens > 0 {
		apiReq.Thinking = &ThinkingConfig{Type: "enabled", BudgetTokens: req.MaxThinkingTokens}
		// Anthropic requires temperature 1 whenever extended thinking is on.
		apiReq.Temperature = 1
	}

	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, driverMessage(m))
	}

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Name:        td.Name,
			Description: td.Description,
			InputSchema: ConvertSchema(td.Parameters),
		})
	}

	return apiReq
}

func driverMessage(m entity.Message) Message {
	role := "user"
	if m.Role == entity.RoleAssistant {
		role = "assistant"
	}

	out := Message{Role: role}
	for _, b := range m.Content {
		out.Content = append(out.Content, driverContentBlock(b))
	}
	return out
}

func driverContentBlock(b entity.ContentBlock) ContentBlock {
	var block ContentBlock
	switch b.Kind {
	case entity.ContentText:
		block = ContentBlock{Type: "text", Text: b.Text}
		if b.Cacheable {
			block.CacheControl = ephemeralCache
		}
	case entity.ContentToolUse:
		block = ContentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput}
	case entity.ContentToolResult:
		block = ContentBlock{Type: "tool_result", ToolUseID: b.ToolResultFor, Content: b.ResultBody, IsError: b.ResultIsError}
	case entity.ContentThinking:
		block = ContentBlock{Type: "thinking", Thinking: b.Thinking, Signature: b.RedactedSig}
	case entity.ContentRedactedThinking:
		block = ContentBlock{Type: "redacted_thinking", Data: b.RedactedSig}
	}
	return block
}

func (p *Provider) parseDriverResponse(body []byte) (*service.DriverResponse, error) {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse driver response: %w", err)
	}

	var blocks []entity.ContentBlock
	for _, b := range apiResp.Content {
		switch b.Type {
		case "text":
			blocks = append(blocks, entity.NewText(b.Text))
		case "tool_use":
			blocks = append(blocks, entity.NewToolUse(b.ID, b.Name, b.Input))
		case "thinking":
			tb := entity.NewThinking(b.Thinking)
			tb.RedactedSig = b.Signature
			blocks = append(blocks, tb)
		case "redacted_thinking":
			blocks = append(blocks, entity.NewRedactedThinking(b.Data))
		}
	}

	return &service.DriverResponse{
		Success:    true,
		Message:    entity.NewMessage(entity.RoleAssistant, blocks...),
		StopReason: driverStopReason(apiResp.StopReason),
		Usage: service.DriverUsage{
			InputTokens:         int64(apiResp.Usage.InputTokens),
			OutputTokens:        int64(apiResp.Usage.OutputTokens),
			CacheReadTokens:     int64(apiResp.Usage.CacheReadInputTokens),
			CacheCreationTokens: int64(apiResp.Usage.CacheCreationInputTokens),
		},
	}, nil
}

func driverStopReason(raw string) service.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return service.StopEndTurn
	case "tool_use":
		return service.StopToolUse
	case "max_tokens":
		return service.StopMaxTokens
	default:
		return service.StopUnknown
	}
}
