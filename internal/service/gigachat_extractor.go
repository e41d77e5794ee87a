package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/extraction"
	"splitsnap/internal/models"
	"splitsnap/pkg/config"
)

// extractionPrompt asks GigaChat Vision for the receipt fields as strict
// JSON. The response is still treated as untrusted: the normalizer and the
// reconciliation checker validate everything downstream.
const extractionPrompt = `You are reading a photo of a restaurant or store receipt.
Return ONLY a JSON object, no markdown fences, no commentary, in this exact shape:
{
  "merchant": "store or restaurant name",
  "currency": "ISO 4217 code, e.g. USD",
  "items": [
    {"name": "line item description", "quantity": 1, "unit_price": "12.99", "confidence": 0.95}
  ],
  "subtotal": "31.00",
  "tax": "2.48",
  "tip": "5.00",
  "discount": "0.00",
  "total": "38.48",
  "confidence": 0.9
}
Rules:
- Omit any field you cannot read instead of guessing.
- unit_price and the declared amounts are decimal strings exactly as printed.
- confidence is your own 0..1 estimate per item and for the whole receipt.
- If the image is not a receipt, return {}.`

// repairInstruction drives a second, text-only pass: when the vision answer
// is not parseable JSON, the model is asked to restate it in the expected
// shape without inventing new values.
const repairInstruction = `You convert a messy description of a receipt into a strict JSON object.
The input is a previous model answer that failed to parse. Restate the same
facts as a single JSON object with the fields merchant, currency, items
(name, quantity, unit_price, confidence), subtotal, tax, tip, discount,
total and confidence. Amounts are decimal strings. Keep only information
present in the input. Return ONLY the JSON object.`

// GigaChatExtractor implements the extraction capability with the GigaChat
// Vision API: the image is uploaded to the provider's file store and then
// referenced as an attachment in a chat completion.
type GigaChatExtractor struct {
	client      *gigago.Client
	model       *gigago.GenerativeModel
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

func NewGigaChatExtractor(cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChatExtractor, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = repairInstruction
	model.Temperature = 0.1

	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	accessToken, err := getAccessToken(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	return &GigaChatExtractor{
		client:      client,
		model:       model,
		logger:      logger,
		httpClient:  httpClient,
		accessToken: accessToken,
		// https://developers.sber.ru/docs/ru/gigachat/api/main
		baseURL: "https://gigachat.devices.sberbank.ru/api/v1",
	}, nil
}

func (e *GigaChatExtractor) Extract(ctx context.Context, image []byte, contentType string) (*models.RawExtraction, error) {
	fileID, err := e.uploadFile(ctx, image, contentType)
	if err != nil {
		return nil, err
	}

	content, err := e.visionCompletion(ctx, fileID)
	if err != nil {
		return nil, err
	}

	raw, err := decodeExtraction(content)
	if errors.Is(err, extraction.ErrMalformedExtraction) && e.model != nil {
		// Second chance: ask the text model to restate the unparseable
		// answer as strict JSON before giving up on the receipt.
		e.logger.Warn("vision answer did not parse, running repair pass",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		repaired, repairErr := e.restructure(ctx, content)
		if repairErr != nil {
			return nil, repairErr
		}
		raw, err = decodeExtraction(repaired)
	}
	if err != nil {
		e.logger.Warn("GigaChat returned an unusable extraction",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Info("receipt extracted",
		zap.String("file_id", fileID),
		zap.Int("items", len(raw.Items)),
	)
	return raw, nil
}

func (e *GigaChatExtractor) uploadFile(ctx context.Context, image []byte, contentType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// "general" purpose makes the upload usable as a Vision attachment.
	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {contentType},
		"Content-Disposition": {`form-data; name="file"; filename="receipt"`},
	})
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp, "file upload")
	}

	var fileResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fileResp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if fileResp.ID == "" {
		return "", fmt.Errorf("%w: empty file id in upload response", ErrProviderUnavailable)
	}
	return fileResp.ID, nil
}

func (e *GigaChatExtractor) visionCompletion(ctx context.Context, fileID string) (string, error) {
	// Attachments format per the GigaChat API docs: [["file_id"]].
	requestBody := map[string]any{
		"model": "GigaChat",
		"messages": []map[string]any{
			{
				"role":        "user",
				"content":     extractionPrompt,
				"attachments": [][]string{{fileID}},
			},
		},
		"temperature": 0.1,
		"stream":      false,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp, "vision completion")
	}

	var visionResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(visionResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in vision response", ErrProviderUnavailable)
	}
	return strings.TrimSpace(visionResp.Choices[0].Message.Content), nil
}

// restructure reformats a vision answer that failed to parse, going through
// the SDK's text completion with the repair system instruction.
func (e *GigaChatExtractor) restructure(ctx context.Context, content string) (string, error) {
	resp, err := e.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: content},
	})
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in repair response", ErrProviderUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (e *GigaChatExtractor) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}

// decodeExtraction pulls the JSON object out of a model response that may be
// wrapped in markdown fences or prose.
func decodeExtraction(content string) (*models.RawExtraction, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", extraction.ErrMalformedExtraction)
	}

	var raw models.RawExtraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", extraction.ErrMalformedExtraction, err)
	}
	return &raw, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func classifyStatus(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s failed with status %d: %s", ErrProviderUnavailable, op, resp.StatusCode, body)
	}
	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, body)
}

// getAccessToken obtains a token from the GigaChat OAuth endpoint; the API
// key is already Base64-encoded per the API docs.
func getAccessToken(ctx context.Context, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	oauthURL := "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.New().String())
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("OAuth failed with status %d: %s", resp.StatusCode, body)
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	logger.Info("GigaChat access token obtained", zap.Int("expires_in", oauthResp.ExpiresIn))
	return oauthResp.AccessToken, nil
}
