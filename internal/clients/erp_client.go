package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/models"
)

const defaultTimeout = 10 * time.Second

// ERPClient reads authoritative budget figures from the ERP's REST surface.
// This subsystem never writes to the ERP; invoice commits happen elsewhere.
type ERPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewERPClient returns HTTP client wrapper.
func NewERPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ERPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ERPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ProjectBudget looks up an analytic account as a project resource.
// Returns (nil, nil) when the ERP has no such budget.
func (c *ERPClient) ProjectBudget(ctx context.Context, projectID int64) (*models.BudgetSummary, error) {
	return c.getSummary(ctx, fmt.Sprintf("/api/projects/%d/budget", projectID))
}

// DepartmentBudget looks up a period-scoped department budget. The ERP
// resolves the fiscal period from asOf; this client does not compute periods.
func (c *ERPClient) DepartmentBudget(ctx context.Context, departmentID int64, asOf time.Time) (*models.BudgetSummary, error) {
	path := fmt.Sprintf("/api/departments/%d/budget?as_of=%s", departmentID, url.QueryEscape(asOf.Format("2006-01-02")))
	return c.getSummary(ctx, path)
}

// ConstructionBudget looks up a construction project's budget for one spend category.
func (c *ERPClient) ConstructionBudget(ctx context.Context, projectID, spendCategoryID int64) (*models.BudgetSummary, error) {
	return c.getSummary(ctx, fmt.Sprintf("/api/projects/%d/categories/%d/budget", projectID, spendCategoryID))
}

func (c *ERPClient) getSummary(ctx context.Context, path string) (*models.BudgetSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("erp request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("erp: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		c.logger.Warn("erp returned non-success", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("erp: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("erp: read body: %w", err)
	}

	var summary models.BudgetSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("erp: decode budget: %w", err)
	}
	return &summary, nil
}
