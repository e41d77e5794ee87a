package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"splitsnap/internal/extraction"
)

func TestDecodeExtraction(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		items   int
	}{
		{
			name:    "plain json",
			content: `{"merchant":"Cafe","items":[{"name":"Tea","unit_price":"2.50"}],"total":"2.50"}`,
			items:   1,
		},
		{
			name:    "fenced json",
			content: "```json\n{\"merchant\":\"Cafe\",\"items\":[{\"name\":\"Tea\"}]}\n```",
			items:   1,
		},
		{
			name:    "prose around the object",
			content: `Here is the receipt: {"merchant":"Cafe","items":[]} as requested.`,
			items:   0,
		},
		{
			name:    "no json at all",
			content: "I could not read the image.",
			wantErr: true,
		},
		{
			name:    "broken json",
			content: `{"merchant": "Cafe",`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := decodeExtraction(tt.content)
			if tt.wantErr {
				if !errors.Is(err, extraction.ErrMalformedExtraction) {
					t.Fatalf("err = %v, want malformed extraction", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeExtraction: %v", err)
			}
			if len(raw.Items) != tt.items {
				t.Fatalf("items = %d, want %d", len(raw.Items), tt.items)
			}
		})
	}
}

func testExtractor(baseURL string) *GigaChatExtractor {
	return &GigaChatExtractor{
		logger:      zap.NewNop(),
		httpClient:  &http.Client{},
		baseURL:     baseURL,
		accessToken: "test-token",
	}
}

func TestExtractAgainstStubbedAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			w.Write([]byte(`{"id":"file-123"}`))
		case "/chat/completions":
			w.Write([]byte(`{"choices":[{"message":{"content":"{\"merchant\":\"Cafe\",\"items\":[{\"name\":\"Tea\",\"quantity\":1,\"unit_price\":\"2.50\"}],\"total\":\"2.50\"}"}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ex := testExtractor(srv.URL)
	raw, err := ex.Extract(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(raw.Merchant) != "Cafe" || len(raw.Items) != 1 {
		t.Fatalf("unexpected extraction: %+v", raw)
	}
}

func TestExtractMalformedAnswerWithoutRepairModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			w.Write([]byte(`{"id":"file-123"}`))
		case "/chat/completions":
			w.Write([]byte(`{"choices":[{"message":{"content":"I could not read the image."}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// No repair model wired: the unparseable answer fails straight away.
	ex := testExtractor(srv.URL)
	_, err := ex.Extract(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, extraction.ErrMalformedExtraction) {
		t.Fatalf("err = %v, want malformed extraction", err)
	}
}

func TestExtractClassifiesServerErrorsAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := testExtractor(srv.URL)
	_, err := ex.Extract(context.Background(), []byte("img"), "image/jpeg")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want provider unavailable", err)
	}
	if !isTransient(err) {
		t.Fatal("server errors should be retryable")
	}
}

func TestExtractCancelledContextClassifiedAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := testExtractor(srv.URL)
	_, err := ex.Extract(ctx, []byte("img"), "image/jpeg")
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("err = %v, want provider timeout", err)
	}
}
