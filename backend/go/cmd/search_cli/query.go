package main

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/search_service/api"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	httpclient "Neurologix/backend/go/pkg/http"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question and print the answer with its citations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()
		return runQuery(ctx, cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().BoolVarP(&opts.stream, "stream", "s", true, "print the answer as it is generated")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(ctx context.Context, out io.Writer, question string) error {
	client, err := httpclient.NewClient(config.CircuitBreakerConfig{})
	if err != nil {
		return err
	}

	body, err := json.Marshal(api.QueryRequest{Question: question})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.url, "/")+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return printStream(out, resp.Body)
	}
	return printResponse(out, resp)
}

// printStream writes each chunk's text as it arrives, then the citations.
func printStream(out io.Writer, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var chunk schema.AnswerChunk
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &chunk); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		fmt.Fprint(out, chunk.Text)
		if chunk.IsFinal {
			fmt.Fprintln(out)
			return finish(out, chunk.Citations, chunk.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without a final chunk")
}

func printResponse(out io.Writer, resp *http.Response) error {
	var qr api.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if qr.Answer == "" && qr.Error == nil && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if qr.Answer != "" {
		fmt.Fprintln(out, qr.Answer)
	}
	return finish(out, qr.Citations, qr.Error)
}

func finish(out io.Writer, citations []string, chunkErr *schema.ChunkError) error {
	if len(citations) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, c := range citations {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, c)
		}
	}
	if chunkErr != nil {
		return fmt.Errorf("%s: %s", chunkErr.Kind, chunkErr.Message)
	}
	return nil
}
