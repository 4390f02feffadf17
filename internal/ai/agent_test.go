package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-autoparts-pos/internal/apperr"
	"go-autoparts-pos/internal/config"
	"go-autoparts-pos/internal/database"
	"go-autoparts-pos/internal/database/dbtest"
	"go-autoparts-pos/internal/models"
	"go-autoparts-pos/internal/returns"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAgent(t *testing.T) (*Agent, *database.Store) {
	t.Helper()
	store := dbtest.New(t)
	svc := returns.NewService(returns.Deps{
		Tx:       store,
		Sales:    store.Sales,
		Products: store.Products,
		Ledger:   store.Products,
		Returns:  store.Returns,
		Audit:    store.Audit,
	}, returns.Options{Policy: returns.NewPolicy(decimal.NewFromInt(1000)), EnforceReturnable: true})

	agent := NewAgent(config.AIConfig{Model: "test-model"}, Deps{
		Inventory: store.Products,
		Reports:   store.Reports,
		Returns:   svc,
		Logger:    zaptest.NewLogger(t),
	})
	agent.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local) }
	return agent, store
}

// scriptedChat replays canned model responses and records what was sent.
type scriptedChat struct {
	replies []*genai.GenerateContentResponse
	sent    [][]genai.Part
}

func (s *scriptedChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	s.sent = append(s.sent, parts)
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	resp := s.replies[0]
	s.replies = s.replies[1:]
	return resp, nil
}

func reply(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestExecuteTool_CheckInventory(t *testing.T) {
	agent, store := newAgent(t)
	ctx := context.Background()
	dbtest.Product(t, store, "Brake Pad", "150", 12)
	require.NoError(t, store.Products.Create(ctx, &models.Product{
		SKU: "EN-7", Name: "Gasket", Category: "ENGINE", Price: decimal.NewFromInt(30), StockQuantity: 4,
	}))

	out, err := agent.executeTool(ctx, "check_inventory", map[string]any{"category": "ENGINE"})
	require.NoError(t, err)

	rows, ok := out["inventory"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Gasket", row["name"])
	assert.Equal(t, "30.00", row["price"])
	assert.Equal(t, float64(4), row["stock"])

	out, err = agent.executeTool(ctx, "check_inventory", nil)
	require.NoError(t, err)
	assert.Len(t, out["inventory"], 2)
}

func TestExecuteTool_SalesReport(t *testing.T) {
	agent, store := newAgent(t)
	p := dbtest.Product(t, store, "Battery", "1500", 5)
	dbtest.Sale(t, store, "240", dbtest.Line{Product: p, Quantity: 1, Price: "1500"})

	today := time.Now().Format(dateLayout)
	out, err := agent.executeTool(context.Background(), "get_sales_report", map[string]any{
		"start_date": today,
		"end_date":   today,
	})
	require.NoError(t, err)
	assert.Equal(t, "1740.00", out["revenue"])
	assert.Equal(t, float64(1), out["sales_count"])
	assert.Equal(t, "1740.00", out["net_revenue"])

	_, err = agent.executeTool(context.Background(), "get_sales_report", map[string]any{"start_date": "yesterday", "end_date": today})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExecuteTool_Returns(t *testing.T) {
	agent, store := newAgent(t)
	ctx := context.Background()
	p := dbtest.Product(t, store, "Headlight", "800", 5)
	sale := dbtest.Sale(t, store, "0", dbtest.Line{Product: p, Quantity: 3, Price: "800"})

	_, err := agent.Returns.(*returns.Service).RequestReturn(ctx, returns.RequestInput{
		SaleID:       sale.ID,
		Lines:        []returns.LineInput{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
		Reason:       models.ReturnReasonDefective,
		RefundMethod: models.RefundCash,
		Requester:    returns.Actor{ID: 2, Role: models.RoleCashier},
	})
	require.NoError(t, err)

	out, err := agent.executeTool(ctx, "count_pending_returns", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["pending_returns"])

	out, err = agent.executeTool(ctx, "lookup_sale_for_return", map[string]any{"sale_id": float64(sale.ID)})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["previous_returns"])
	lines := out["lines"].([]any)
	require.Len(t, lines, 1)
	first := lines[0].(map[string]any)
	assert.Equal(t, "Headlight", first["product"])
	assert.Equal(t, float64(1), first["returnable"])

	_, err = agent.executeTool(ctx, "lookup_sale_for_return", map[string]any{"sale_id": float64(999)})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = agent.executeTool(ctx, "lookup_sale_for_return", map[string]any{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExecuteTool_Unknown(t *testing.T) {
	agent, _ := newAgent(t)
	_, err := agent.executeTool(context.Background(), "update_product_price", map[string]any{})
	assert.ErrorContains(t, err, "unknown tool")
}

func TestConverse_AnswersToolCallsThenReturnsText(t *testing.T) {
	agent, store := newAgent(t)
	dbtest.Product(t, store, "Oil Filter", "80", 9)

	chat := &scriptedChat{replies: []*genai.GenerateContentResponse{
		reply(genai.FunctionCall{Name: "check_inventory", Args: map[string]any{}}),
		reply(genai.Text("There are 9 oil filters in stock.")),
	}}

	answer, err := agent.converse(context.Background(), chat, "How many oil filters?")
	require.NoError(t, err)
	assert.Equal(t, "There are 9 oil filters in stock.", answer)

	require.Len(t, chat.sent, 2)
	assert.Equal(t, genai.Text("How many oil filters?"), chat.sent[0][0])
	fr, ok := chat.sent[1][0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "check_inventory", fr.Name)
	assert.Len(t, fr.Response["inventory"], 1)
}

func TestConverse_ToolErrorIsReportedToModel(t *testing.T) {
	agent, _ := newAgent(t)

	chat := &scriptedChat{replies: []*genai.GenerateContentResponse{
		reply(genai.FunctionCall{Name: "lookup_sale_for_return", Args: map[string]any{"sale_id": float64(42)}}),
		reply(genai.Text("Ticket 42 does not exist.")),
	}}

	answer, err := agent.converse(context.Background(), chat, "What can be returned on ticket 42?")
	require.NoError(t, err)
	assert.Equal(t, "Ticket 42 does not exist.", answer)

	fr := chat.sent[1][0].(genai.FunctionResponse)
	assert.Contains(t, fr.Response["error"], "not found")
}

func TestConverse_StopsAfterToolRoundLimit(t *testing.T) {
	agent, _ := newAgent(t)

	var replies []*genai.GenerateContentResponse
	for i := 0; i <= maxToolRounds; i++ {
		replies = append(replies, reply(genai.FunctionCall{Name: "count_pending_returns"}))
	}
	chat := &scriptedChat{replies: replies}

	_, err := agent.converse(context.Background(), chat, "loop forever")
	assert.ErrorContains(t, err, "tool call limit")
	assert.Len(t, chat.sent, maxToolRounds+1)
}

func TestConverse_EmptyResponse(t *testing.T) {
	agent, _ := newAgent(t)
	chat := &scriptedChat{replies: []*genai.GenerateContentResponse{{}}}

	answer, err := agent.converse(context.Background(), chat, "hello")
	require.NoError(t, err)
	assert.Equal(t, "I completed the action.", answer)
}

func TestSystemPromptCarriesToday(t *testing.T) {
	agent, _ := newAgent(t)
	assert.Contains(t, agent.systemPrompt(), "Today is 2026-03-01.")
}
