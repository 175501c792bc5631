package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// TaskDrafter turns free text into draft tasks for one day.
type TaskDrafter interface {
	DraftTasks(ctx context.Context, dateKey, text string) ([]GeneratedTask, error)
}

type AIService struct {
	client *openai.Client
	now    func() time.Time
}

// GeneratedTask is one draft returned by the model. Times are HH:MM or empty.
type GeneratedTask struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Time         string `json:"time"`
	EndTime      string `json:"end_time"`
	DurationDays int    `json:"duration_days"`
}

func NewAIService(apiKey string) *AIService {
	return &AIService{
		client: openai.NewClient(apiKey),
		now:    time.Now,
	}
}

// NewAIServiceWithConfig builds the service from a full client config, e.g. to point
// it at another base URL.
func NewAIServiceWithConfig(cfg openai.ClientConfig) *AIService {
	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		now:    time.Now,
	}
}

// DraftTasks asks the model to extract the tasks described by text, scheduled on
// dateKey.
func (s *AIService) DraftTasks(ctx context.Context, dateKey, text string) ([]GeneratedTask, error) {
	if s.client == nil {
		return nil, fmt.Errorf("OpenAI client not initialized")
	}

	currentTime := s.now().Format("2006-01-02 15:04")
	prompt := fmt.Sprintf(`You are a day-planning assistant. Extract concrete tasks from the text below and schedule them on %s.

Current time: %s

Text:
%s

Return a JSON array of tasks in this shape:
[
  {
    "title": "short task title",
    "description": "details of the task",
    "time": "start time as HH:MM in 24h format, or empty when unknown",
    "end_time": "end time as HH:MM in 24h format, or empty when unknown",
    "duration_days": 1
  }
]

Rules:
- Return [] when the text contains no tasks
- duration_days is the number of calendar days the task spans, at least 1
- Return JSON only, without any explanation`, dateKey, currentTime, text)

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.3,
		},
	)

	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)

	var tasks []GeneratedTask
	if err := json.Unmarshal([]byte(content), &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w (response: %s)", err, content)
	}

	return tasks, nil
}

// stripCodeFence removes a surrounding markdown code block the model sometimes adds.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(content), "```"))
}
