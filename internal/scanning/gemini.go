package scanning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiTimeout = 30 * time.Second

// interpretInstructions is the shared system prompt for all interpreter
// providers.
const interpretInstructions = `You extract a structured table of purchases from raw receipt text. ` +
	`Record every purchased item with its description, quantity and price, along with the total amount of the receipt. ` +
	`If two items share the same price, combine them into one item and increase its quantity. ` +
	`Always provide a quantity for every item.`

// recordReceiptSchema constrains the model output to the receipt record shape.
var recordReceiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"description": {Type: genai.TypeString},
					"quantity":    {Type: genai.TypeNumber},
					"price":       {Type: genai.TypeNumber},
				},
				Required: []string{"description", "quantity", "price"},
			},
		},
		"total": {
			Type:        genai.TypeNumber,
			Description: "The total amount for the purchase",
		},
	},
	Required: []string{"items", "total"},
}

// Gemini implements the Interpreter interface using Google Gemini function
// calling.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Interpreter instance.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(interpretInstructions)},
	}
	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        "record_receipt",
			Description: "Record the purchases, their prices, quantities, and the total amount from the receipt text.",
			Parameters:  recordReceiptSchema,
		}},
	}}
	model.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode: genai.FunctionCallingAuto,
		},
	}

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// InterpretReceipt sends the receipt text to Gemini and decodes the function
// call it returns. A response without a function call means the model answered
// in prose and no structured data can be recovered.
func (g *Gemini) InterpretReceipt(ctx context.Context, text string) (*ReceiptRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &InterpretationError{Provider: "gemini", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty response", ErrNoStructuredPayload)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		fc, ok := part.(genai.FunctionCall)
		if !ok || fc.Name != "record_receipt" {
			continue
		}
		record, err := recordFromPayload(fc.Args)
		if err != nil {
			if errors.Is(err, ErrNoStructuredPayload) {
				return nil, err
			}
			return nil, &InterpretationError{Provider: "gemini", Err: err}
		}
		return record, nil
	}

	return nil, fmt.Errorf("%w: model did not call record_receipt", ErrNoStructuredPayload)
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
