package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/export"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "BIDEXTRACT_API_KEY", "BIDEXTRACT_PROVIDER", "BIDEXTRACT_MODEL_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

// fakeOpenAI answers the model lookup used by the preflight and every chat
// completion with content.
func fakeOpenAI(t *testing.T, pingStatus int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/models/"):
			if pingStatus != http.StatusOK {
				w.WriteHeader(pingStatus)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"gpt-4o","object":"model","created":1,"owned_by":"openai"}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body, _ := json.Marshal(map[string]any{
				"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
				"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
				"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
			})
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	return exitCode(root.Execute()), stdout.String()
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, config.ExitOK},
		{"explicit", withCode(config.ExitFailed, errors.New("2 of 3 documents failed")), config.ExitFailed},
		{"config error", failure.New(failure.ConfigError, "config.validate", errors.New("api_key is required")), config.ExitConfig},
		{"usage", errors.New(`unknown flag: --bogus`), config.ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestSchemaCommand(t *testing.T) {
	clearKeys(t)
	code, out := execute(t, "schema")
	if code != config.ExitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "ten_goi_thau") || !strings.Contains(out, "kind: date") {
		t.Errorf("unexpected schema output:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	content := `{"fields":{"ten_goi_thau":{"value":"Mua sắm thiết bị","confidence":0.9},"ngay_phat_hanh":"01/03/2024"}}`

	t.Run("missing api key exits 2", func(t *testing.T) {
		clearKeys(t)
		dir := t.TempDir()
		writeDoc(t, dir, "a.txt", "Tên gói thầu: Mua sắm thiết bị.")
		if code, _ := execute(t, "run", dir); code != config.ExitConfig {
			t.Errorf("exit = %d; want %d", code, config.ExitConfig)
		}
	})

	t.Run("rejected credentials exit 2 before any document", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("OPENAI_API_KEY", "sk-bad")
		srv := fakeOpenAI(t, http.StatusUnauthorized, content)
		dir := t.TempDir()
		writeDoc(t, dir, "a.txt", "Tên gói thầu: Mua sắm thiết bị.")
		out := t.TempDir()

		if code, _ := execute(t, "run", dir, "--endpoint", srv.URL, "--output", out, "--retries", "1"); code != config.ExitConfig {
			t.Errorf("exit = %d; want %d", code, config.ExitConfig)
		}
		if entries, _ := os.ReadDir(out); len(entries) != 0 {
			t.Errorf("no batch should be written, found %d entries", len(entries))
		}
	})

	t.Run("all documents done exits 0", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		srv := fakeOpenAI(t, http.StatusOK, content)
		dir := t.TempDir()
		writeDoc(t, dir, "a.txt", "Tên gói thầu: Mua sắm thiết bị. Ngày phát hành: 01/03/2024.")
		out := t.TempDir()

		code, stdout := execute(t, "run", dir, "--endpoint", srv.URL, "--output", out)
		if code != config.ExitOK {
			t.Fatalf("exit = %d; stdout:\n%s", code, stdout)
		}
		batches, _ := os.ReadDir(out)
		if len(batches) != 1 {
			t.Fatalf("batches = %d; want 1", len(batches))
		}
		data, err := os.ReadFile(filepath.Join(out, batches[0].Name(), export.MasterDataFile))
		if err != nil {
			t.Fatalf("read master data: %v", err)
		}
		var md export.MasterData
		if err := json.Unmarshal(data, &md); err != nil {
			t.Fatalf("decode: %v", err)
		}
		doc := md.Documents[filepath.Join(dir, "a.txt")]
		if got := doc.Placeholders["ngay_phat_hanh"].Content; got != "2024-03-01" {
			t.Errorf("ngay_phat_hanh = %v", got)
		}
	})

	t.Run("a failed document exits 1 and siblings still complete", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		srv := fakeOpenAI(t, http.StatusOK, content)
		dir := t.TempDir()
		writeDoc(t, dir, "a.txt", "Tên gói thầu: Mua sắm thiết bị.")
		writeDoc(t, dir, "blank.txt", " \n")

		code, stdout := execute(t, "run", dir, "--endpoint", srv.URL, "--output", t.TempDir())
		if code != config.ExitFailed {
			t.Errorf("exit = %d; want %d", code, config.ExitFailed)
		}
		if !strings.Contains(stdout, "1 done, 1 failed") || !strings.Contains(stdout, "blank.txt") {
			t.Errorf("summary output:\n%s", stdout)
		}
	})
}

func TestServeCommand(t *testing.T) {
	t.Run("missing api key exits 2", func(t *testing.T) {
		clearKeys(t)
		if code, _ := execute(t, "serve", "--listen-addr", "127.0.0.1:0"); code != config.ExitConfig {
			t.Errorf("exit = %d; want %d", code, config.ExitConfig)
		}
	})

	t.Run("rejected credentials exit 2 before listening", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("OPENAI_API_KEY", "sk-bad")
		srv := fakeOpenAI(t, http.StatusUnauthorized, "{}")
		if code, _ := execute(t, "serve", "--endpoint", srv.URL, "--listen-addr", "127.0.0.1:0"); code != config.ExitConfig {
			t.Errorf("exit = %d; want %d", code, config.ExitConfig)
		}
	})

	t.Run("positional arguments are rejected", func(t *testing.T) {
		clearKeys(t)
		if code, _ := execute(t, "serve", "docs/"); code != config.ExitConfig {
			t.Errorf("exit = %d; want %d", code, config.ExitConfig)
		}
	})
}
