package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ibkchat/insight/backend/internal/config"
	"github.com/ibkchat/insight/backend/internal/models"
	"github.com/ibkchat/insight/backend/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatMessage is one turn of a completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionResult is the provider-agnostic completion response.
type CompletionResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer is the messages-in/text-out contract the report builder depends on.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (*CompletionResult, error)
}

type AIService struct {
	db            *gorm.DB
	config        *config.OpenAIConfig
	configService *SystemConfigService
	usageService  *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.OpenAIConfig) *AIService {
	return &AIService{
		db:            db,
		config:        cfg,
		configService: NewSystemConfigService(db),
		usageService:  NewAIUsageService(db),
	}
}

// Complete tries the ordered LLM configurations until one succeeds.
func (s *AIService) Complete(ctx context.Context, messages []ChatMessage) (*CompletionResult, error) {
	llmConfigs := s.getOrderedLLMConfigs()
	if len(llmConfigs) == 0 {
		return nil, fmt.Errorf("no LLM configuration available")
	}

	var lastErr error
	for i, llmConfig := range llmConfigs {
		logger.Infof("[AI] Attempting LLM %d/%d: %s (provider: %s, model: %s)",
			i+1, len(llmConfigs), llmConfig.Name, llmConfig.Provider, llmConfig.Model)

		start := time.Now()
		result, err := s.callLLM(ctx, &llmConfig, messages)
		s.recordUsage(&llmConfig, result, time.Since(start), err)

		if err == nil {
			logger.Infof("[AI] Success with LLM: %s", llmConfig.Name)
			return result, nil
		}

		lastErr = err
		logger.Warnf("[AI] LLM %s failed: %v, trying next", llmConfig.Name, err)
	}

	return nil, fmt.Errorf("all LLMs failed, last error: %w", lastErr)
}

// getOrderedLLMConfigs builds the fallback chain: the report's preferred
// config first, then the default, then every remaining active config, and
// finally the static fallback from the config file.
func (s *AIService) getOrderedLLMConfigs() []models.LLMConfig {
	var configs []models.LLMConfig
	existingIDs := make(map[uint]bool)

	appendConfig := func(c models.LLMConfig) {
		if !existingIDs[c.ID] {
			existingIDs[c.ID] = true
			configs = append(configs, c)
		}
	}

	if preferredID := s.preferredConfigID(); preferredID > 0 {
		var preferred models.LLMConfig
		if err := s.db.Where("id = ? AND is_active = ?", preferredID, true).First(&preferred).Error; err == nil {
			appendConfig(preferred)
		}
	}

	var defaultConfig models.LLMConfig
	if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&defaultConfig).Error; err == nil {
		appendConfig(defaultConfig)
	}

	var backupConfigs []models.LLMConfig
	s.db.Where("is_active = ?", true).Order("id ASC").Find(&backupConfigs)
	for _, c := range backupConfigs {
		appendConfig(c)
	}

	if len(configs) == 0 && s.config != nil && s.config.APIKey != "" {
		configs = append(configs, models.LLMConfig{
			Name:    "fallback",
			BaseURL: s.config.BaseURL,
			APIKey:  s.config.APIKey,
			Model:   s.config.Model,
		})
	}

	return configs
}

func (s *AIService) preferredConfigID() uint {
	value := s.configService.GetWithDefault("chat_report_llm_config_id", "")
	if value == "" {
		return 0
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func (s *AIService) recordUsage(llmConfig *models.LLMConfig, result *CompletionResult, latency time.Duration, callErr error) {
	usage := &models.AIUsageLog{
		Provider:  llmConfig.Provider,
		Model:     llmConfig.Model,
		Purpose:   "chat_report",
		LatencyMs: latency.Milliseconds(),
		Success:   callErr == nil,
	}
	if result != nil {
		usage.PromptTokens = result.InputTokens
		usage.CompletionTokens = result.OutputTokens
	}
	if callErr != nil {
		usage.ErrorMessage = callErr.Error()
	}
	s.usageService.Record(usage)
}

// callLLM dispatches to the appropriate provider-specific function based on Provider field
func (s *AIService) callLLM(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	switch llmConfig.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, llmConfig, messages)
	case "ollama":
		return s.callOllama(ctx, llmConfig, messages)
	case "gemini":
		return s.callGemini(ctx, llmConfig, messages)
	case "azure":
		return s.callAzure(ctx, llmConfig, messages)
	default:
		// openai and other OpenAI-compatible services
		return s.callOpenAI(ctx, llmConfig, messages)
	}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleSystem {
			role = openai.ChatMessageRoleSystem
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return result
}

// splitSystem separates system instructions from conversational turns for
// providers that take them as a dedicated parameter.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system strings.Builder
	var rest []ChatMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system.String(), rest
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom endpoints)
func (s *AIService) callOpenAI(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	clientConfig := openai.DefaultConfig(llmConfig.APIKey)
	if llmConfig.BaseURL != "" {
		clientConfig.BaseURL = llmConfig.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.3)
	if llmConfig.Temperature > 0 {
		temperature = float32(llmConfig.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       llmConfig.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return &CompletionResult{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// callAnthropic handles Anthropic Claude API using the native SDK
func (s *AIService) callAnthropic(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(llmConfig.APIKey),
	)

	maxTokens := int64(llmConfig.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, rest := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(llmConfig.Model),
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range rest {
		params.Messages = append(params.Messages,
			anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResult{
		Content:      content.String(),
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// callOllama handles Ollama API using the native SDK
func (s *AIService) callOllama(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	var content strings.Builder
	var inputTokens, outputTokens int
	err = client.Chat(ctx, &api.ChatRequest{
		Model:    llmConfig.Model,
		Messages: apiMessages,
		Options: map[string]interface{}{
			"temperature": llmConfig.Temperature,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			inputTokens = resp.Metrics.PromptEvalCount
			outputTokens = resp.Metrics.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	return &CompletionResult{
		Content:      content.String(),
		Model:        llmConfig.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// callGemini handles Google Gemini API using the native SDK
func (s *AIService) callGemini(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: llmConfig.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	system, rest := splitSystem(messages)
	var genConfig *genai.GenerateContentConfig
	if system != "" {
		genConfig = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: system}},
			},
		}
	}

	var user strings.Builder
	for i, m := range rest {
		if i > 0 {
			user.WriteString("\n\n")
		}
		user.WriteString(m.Content)
	}

	resp, err := client.Models.GenerateContent(ctx, llmConfig.Model, genai.Text(user.String()), genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	result := &CompletionResult{
		Content: resp.Text(),
		Model:   llmConfig.Model,
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// callAzure handles Azure OpenAI API using special configuration
func (s *AIService) callAzure(ctx context.Context, llmConfig *models.LLMConfig, messages []ChatMessage) (*CompletionResult, error) {
	// Azure requires BaseURL format: https://{resource-name}.openai.azure.com
	// Model field is used as deployment name
	clientConfig := openai.DefaultAzureConfig(llmConfig.APIKey, llmConfig.BaseURL)
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.3)
	if llmConfig.Temperature > 0 {
		temperature = float32(llmConfig.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       llmConfig.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("Azure OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from Azure OpenAI")
	}

	return &CompletionResult{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
