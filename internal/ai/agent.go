// Package ai runs the back-office assistant: a Gemini chat whose function
// calls are answered by the POS services.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-autoparts-pos/internal/config"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// maxToolRounds bounds how many times the model may call back into the POS
// for one question.
const maxToolRounds = 5

type Inventory interface {
	List(ctx context.Context, category string) ([]models.Product, error)
}

type Reports interface {
	SalesReport(ctx context.Context, start, end time.Time) (*database.SalesReportResult, error)
}

type Returns interface {
	PendingCount(ctx context.Context) (int64, error)
	FindSaleForReturn(ctx context.Context, saleID uint) (*returns.SaleForReturn, error)
}

type Deps struct {
	Inventory Inventory
	Reports   Reports
	Returns   Returns
	Logger    *zap.Logger
}

// Agent answers one question per call; no chat history survives between
// calls.
type Agent struct {
	Deps
	apiKey string
	model  string
	now    func() time.Time
}

func NewAgent(cfg config.AIConfig, deps Deps) *Agent {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Agent{Deps: deps, apiKey: cfg.GeminiAPIKey, model: cfg.Model, now: time.Now}
}

// chat is the part of *genai.ChatSession the agent drives.
type chat interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

func (a *Agent) Ask(ctx context.Context, message string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(a.systemPrompt())}}
	model.Tools = []*genai.Tool{{FunctionDeclarations: toolDeclarations}}

	return a.converse(ctx, model.StartChat(), message)
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf(`Today is %s. You are the back-office assistant of an auto parts store.

RULES:
1. PRODUCTS: For price, cost, stock or details of a part, call 'check_inventory' and read the result. Never say you cannot get the price.
2. SALES: For revenue or number of sales, call 'get_sales_report'. Revenue is reported net of refunded returns.
3. RETURNS: For how many returns wait for approval, call 'count_pending_returns'. To see what is left to return on a ticket, call 'lookup_sale_for_return' with the ticket number.
4. You cannot change prices, stock or returns. Explain that those go through the register screens.`, a.now().Format(dateLayout))
}

// converse sends the question and keeps answering function calls until the
// model replies with text.
func (a *Agent) converse(ctx context.Context, session chat, message string) (string, error) {
	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	for round := 0; ; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return responseText(resp), nil
		}
		if round == maxToolRounds {
			return "", errors.New("assistant exceeded the tool call limit")
		}

		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result, err := a.executeTool(ctx, call.Name, call.Args)
			if err != nil {
				// Let the model explain the failure instead of failing the request.
				a.Logger.Warn("Assistant tool failed", zap.String("tool", call.Name), zap.Error(err))
				result = map[string]any{"error": err.Error()}
			}
			replies = append(replies, genai.FunctionResponse{Name: call.Name, Response: result})
		}

		resp, err = session.SendMessage(ctx, replies...)
		if err != nil {
			return "", fmt.Errorf("send tool results: %w", err)
		}
	}
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].FunctionCalls()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				return string(txt)
			}
		}
	}
	return "I completed the action."
}
