// Package platform talks to the research-data platform where submission
// results are published.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rrchai/medrun/internal/config"
	"github.com/rrchai/medrun/internal/logging"
	"github.com/rrchai/medrun/internal/shell"
)

const folderConcreteType = "org.sagebionetworks.repo.model.Folder"

// Client reaches the platform through its REST API, falling back to the
// platform CLI when no API credentials are configured.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	cliBinary  string
	exec       shell.Executor
	logger     zerolog.Logger
}

// NewClient builds a platform client from configuration. A missing or
// unreadable token file is not fatal; the client degrades to the CLI.
func NewClient(cfg config.PlatformConfig, executor shell.Executor) *Client {
	token := ""
	if cfg.AuthTokenPath != "" {
		if data, err := os.ReadFile(cfg.AuthTokenPath); err == nil {
			token = strings.TrimSpace(string(data))
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      token,
		cliBinary:  cfg.CLIBinary,
		exec:       executor,
		logger:     logging.Component("platform"),
	}
}

type entityRequest struct {
	Name         string `json:"name"`
	ParentID     string `json:"parentId"`
	ConcreteType string `json:"concreteType"`
}

type entityResponse struct {
	ID string `json:"id"`
}

// CreateFolder creates a folder under parentID and returns its typed
// identifier. The REST call is preferred; the CLI text-scrape is the
// fallback with a strict pattern and explicit failure on no match.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if c.token != "" && c.baseURL != "" {
		id, err := c.createFolderREST(ctx, name, parentID)
		if err == nil {
			return id, nil
		}
		c.logger.Warn().Err(err).Str("folder", name).Msg("REST folder creation failed, falling back to CLI")
	}
	return c.createFolderCLI(ctx, name, parentID)
}

func (c *Client) createFolderREST(ctx context.Context, name, parentID string) (string, error) {
	body, err := json.Marshal(entityRequest{
		Name:         name,
		ParentID:     parentID,
		ConcreteType: folderConcreteType,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entity", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("entity creation returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var entity entityResponse
	if err := json.Unmarshal(payload, &entity); err != nil {
		return "", fmt.Errorf("unparsable entity response: %w", err)
	}
	if entity.ID == "" {
		return "", fmt.Errorf("entity response carried no identifier")
	}
	return entity.ID, nil
}

func (c *Client) createFolderCLI(ctx context.Context, name, parentID string) (string, error) {
	stdout, stderr, err := c.exec.Exec(ctx, c.cliBinary, "create", "Folder", "-name", name, "-parentid", parentID)
	if err != nil {
		return "", fmt.Errorf("platform CLI folder creation failed: %w", err)
	}

	id, ok := ScrapeEntityID(string(stdout) + "\n" + string(stderr))
	if !ok {
		return "", fmt.Errorf("no entity identifier found in platform CLI output for folder %s", name)
	}
	return id, nil
}

// UploadFile stores a local file under the given parent folder.
func (c *Client) UploadFile(ctx context.Context, localPath, parentID string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("upload source missing: %w", err)
	}
	_, _, err := c.exec.Exec(ctx, c.cliBinary, "store", localPath, "--parentid", parentID)
	if err != nil {
		return fmt.Errorf("platform upload of %s failed: %w", localPath, err)
	}
	return nil
}
