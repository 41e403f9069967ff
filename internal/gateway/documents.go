package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxDocumentBytes bounds a single instructions or knowledge document.
const maxDocumentBytes = 4 << 20

// DocumentSources names where the static prompt documents come from. Each
// source is a file path or an http(s) URL; empty means no document.
type DocumentSources struct {
	Instructions string
	Knowledge    string
}

// Documents is the loaded text of [DocumentSources]. The content is opaque
// and inserted into the system prompt verbatim.
type Documents struct {
	Instructions string
	Knowledge    string
}

// LoadDocuments fetches both documents concurrently. A document that cannot
// be read is left empty; the returned error joins every such failure, so
// callers that only need best-effort text may log it and carry on.
func LoadDocuments(ctx context.Context, client *http.Client, src DocumentSources) (Documents, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var docs Documents
	var instrErr, knowledgeErr error
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		docs.Instructions, instrErr = loadDocument(egCtx, client, src.Instructions)
		return nil
	})
	eg.Go(func() error {
		docs.Knowledge, knowledgeErr = loadDocument(egCtx, client, src.Knowledge)
		return nil
	})
	_ = eg.Wait()

	var errs []error
	if instrErr != nil {
		errs = append(errs, fmt.Errorf("instructions: %w", instrErr))
	}
	if knowledgeErr != nil {
		errs = append(errs, fmt.Errorf("knowledge: %w", knowledgeErr))
	}
	if len(errs) > 0 {
		return docs, fmt.Errorf("gateway: load documents: %w", errors.Join(errs...))
	}
	return docs, nil
}

func loadDocument(ctx context.Context, client *http.Client, source string) (string, error) {
	if source == "" {
		return "", nil
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchDocument(ctx, client, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", source, err)
	}
	return string(data), nil
}

func fetchDocument(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return string(data), nil
}
