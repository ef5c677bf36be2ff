// Package proxmox implements the job client adapter against a Proxmox VE
// style cluster API.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

// exitOK is the terminal exit status the cluster reports for a successful task.
const exitOK = "OK"

// Client talks to the cluster's JSON API.
type Client struct {
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithInsecureTLS skips certificate verification. Lab clusters commonly run
// on self-signed certificates.
func WithInsecureTLS() ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// NewClient creates a cluster API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ticketResponse struct {
	Data struct {
		Ticket    string `json:"ticket"`
		CSRFToken string `json:"CSRFPreventionToken"`
	} `json:"data"`
}

// Authenticate obtains a session ticket for the cluster.
func (c *Client) Authenticate(ctx context.Context, creds domain.ClusterCredentials) (out.Session, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	endpoint := strings.TrimSuffix(creds.APIURL, "/") + "/api2/json/access/ticket"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return out.Session{}, fmt.Errorf("failed to build ticket request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out.Session{}, fmt.Errorf("ticket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out.Session{}, fmt.Errorf("ticket request returned %s", resp.Status)
	}

	var ticket ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return out.Session{}, fmt.Errorf("failed to decode ticket response: %w", err)
	}
	if ticket.Data.Ticket == "" {
		return out.Session{}, fmt.Errorf("cluster returned an empty ticket")
	}

	return out.Session{
		Ticket:    ticket.Data.Ticket,
		CSRFToken: ticket.Data.CSRFToken,
		APIURL:    strings.TrimSuffix(creds.APIURL, "/"),
	}, nil
}

// SubmitBackup dispatches a vzdump backup task and returns its UPID.
func (c *Client) SubmitBackup(ctx context.Context, sess out.Session, node string, vmid int, opts domain.BackupOptions) (string, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	form.Set("compress", opts.Compression)
	form.Set("mode", opts.Mode)
	form.Set("storage", opts.Storage)

	path := fmt.Sprintf("/api2/json/nodes/%s/vzdump", url.PathEscape(node))
	return c.submitTask(ctx, sess, path, form)
}

// SubmitAction dispatches a VM lifecycle action task and returns its UPID.
func (c *Client) SubmitAction(ctx context.Context, sess out.Session, node string, vmid int, action domain.ActionKind) (string, error) {
	var path string
	form := url.Values{}

	switch action {
	case domain.ActionStart, domain.ActionStop:
		path = fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/status/%s", url.PathEscape(node), vmid, action)
	case domain.ActionSnapshot:
		path = fmt.Sprintf("/api2/json/nodes/%s/qemu/%d/snapshot", url.PathEscape(node), vmid)
		form.Set("snapname", fmt.Sprintf("auto-%d", time.Now().UTC().Unix()))
	default:
		return "", fmt.Errorf("unsupported action %q", action)
	}

	return c.submitTask(ctx, sess, path, form)
}

type taskStatusResponse struct {
	Data struct {
		Status     string `json:"status"`
		ExitStatus string `json:"exitstatus"`
	} `json:"data"`
}

// PollStatus reads the current state of a task. A task is terminal once its
// status is "stopped"; success is an exit status of OK.
func (c *Client) PollStatus(ctx context.Context, sess out.Session, node, taskID string) (out.TaskStatus, error) {
	path := fmt.Sprintf("/api2/json/nodes/%s/tasks/%s/status", url.PathEscape(node), url.PathEscape(taskID))
	req, err := c.newRequest(ctx, sess, http.MethodGet, path, nil)
	if err != nil {
		return out.TaskStatus{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out.TaskStatus{}, fmt.Errorf("task status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out.TaskStatus{}, fmt.Errorf("task status request returned %s", resp.Status)
	}

	var status taskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return out.TaskStatus{}, fmt.Errorf("failed to decode task status: %w", err)
	}

	terminal := status.Data.Status == "stopped"
	return out.TaskStatus{
		Terminal:   terminal,
		Success:    terminal && status.Data.ExitStatus == exitOK,
		ExitStatus: status.Data.ExitStatus,
	}, nil
}

type taskSubmitResponse struct {
	Data   string          `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func (c *Client) submitTask(ctx context.Context, sess out.Session, path string, form url.Values) (string, error) {
	req, err := c.newRequest(ctx, sess, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("task submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("task submission returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var submit taskSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
		return "", fmt.Errorf("failed to decode task submission response: %w", err)
	}
	if submit.Data == "" {
		return "", fmt.Errorf("cluster returned no task id: %s", string(submit.Errors))
	}
	return submit.Data, nil
}

func (c *Client) newRequest(ctx context.Context, sess out.Session, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, sess.APIURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: sess.Ticket})
	if method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", sess.CSRFToken)
	}
	return req, nil
}
