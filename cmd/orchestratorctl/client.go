package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/basket/taskorc/internal/store"
)

// apiClient is a thin HTTP client over internal/api's read endpoints, the
// only thing orchestratorctl needs: it never touches the store directly,
// so the operator tool works against a remote daemon exactly as a human
// operator hitting curl would.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, body.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) getTask(id int64) (store.TaskDetail, error) {
	var out store.TaskDetail
	err := c.get("/v1/tasks/"+strconv.FormatInt(id, 10), &out)
	return out, err
}

func (c *apiClient) listAudits(id int64) ([]store.AuditsLog, error) {
	var out []store.AuditsLog
	err := c.get("/v1/tasks/"+strconv.FormatInt(id, 10)+"/audits", &out)
	return out, err
}

func (c *apiClient) listUnits(id int64) ([]store.Unit, error) {
	var out []store.Unit
	err := c.get("/v1/tasks/"+strconv.FormatInt(id, 10)+"/units", &out)
	return out, err
}
