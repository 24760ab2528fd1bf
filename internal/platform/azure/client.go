package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/provisor-ai/deskbot/internal/platform"
)

const apiVersion = "2024-07-01"

type Config struct {
	BaseURL        string // defaults to the public ARM endpoint
	SubscriptionID string
	ResourceGroup  string
	Token          string // bearer token; refresh is the deployment's problem
	Timeout        time.Duration
}

// Client drives the Azure compute REST surface for the VM agent. Operations
// that ARM treats as long-running are started and reported as accepted; the
// agent relays status rather than polling to completion.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.SubscriptionID == "" || cfg.ResourceGroup == "" {
		return nil, fmt.Errorf("azure subscription and resource group are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://management.azure.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{config: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Client) ListVMs(ctx context.Context) platform.Result {
	raw, status, err := c.do(ctx, http.MethodGet, c.vmPath(""), nil)
	if err != nil {
		return platform.Fail("list vms: %v", err)
	}
	if status != http.StatusOK {
		return platform.Fail("list vms: status %d", status)
	}
	var decoded struct {
		Value []struct {
			Name       string `json:"name"`
			Location   string `json:"location"`
			Properties struct {
				ProvisioningState string `json:"provisioningState"`
				HardwareProfile   struct {
					VMSize string `json:"vmSize"`
				} `json:"hardwareProfile"`
			} `json:"properties"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return platform.Fail("list vms: decode: %v", err)
	}
	vms := make([]any, 0, len(decoded.Value))
	for _, vm := range decoded.Value {
		vms = append(vms, map[string]any{
			"name":     vm.Name,
			"location": vm.Location,
			"state":    vm.Properties.ProvisioningState,
			"size":     vm.Properties.HardwareProfile.VMSize,
		})
	}
	return platform.OK(map[string]any{"vms": vms, "count": len(vms)})
}

func (c *Client) GetVMStatus(ctx context.Context, name string) platform.Result {
	if name == "" {
		return platform.Fail("vm name is required")
	}
	raw, status, err := c.do(ctx, http.MethodGet, c.vmPath(name)+"/instanceView", nil)
	if err != nil {
		return platform.Fail("vm status: %v", err)
	}
	if status == http.StatusNotFound {
		return platform.Fail("vm %q not found", name)
	}
	if status != http.StatusOK {
		return platform.Fail("vm status: status %d", status)
	}
	var decoded struct {
		Statuses []struct {
			Code          string `json:"code"`
			DisplayStatus string `json:"displayStatus"`
		} `json:"statuses"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return platform.Fail("vm status: decode: %v", err)
	}
	power := "unknown"
	for _, s := range decoded.Statuses {
		if strings.HasPrefix(s.Code, "PowerState/") {
			power = s.DisplayStatus
		}
	}
	return platform.OK(map[string]any{"name": name, "power_state": power})
}

// CreateVM provisions a small Linux VM with the given name and size. Network
// plumbing is expected to exist already (the original deployment pre-created
// the NIC per naming convention).
func (c *Client) CreateVM(ctx context.Context, name, size, location string) platform.Result {
	if name == "" {
		return platform.Fail("vm name is required")
	}
	if size == "" {
		size = "Standard_B2s"
	}
	if location == "" {
		location = "eastus"
	}
	body := map[string]any{
		"location": location,
		"properties": map[string]any{
			"hardwareProfile": map[string]any{"vmSize": size},
			"storageProfile": map[string]any{
				"imageReference": map[string]any{
					"publisher": "Canonical",
					"offer":     "ubuntu-24_04-lts",
					"sku":       "server",
					"version":   "latest",
				},
			},
			"networkProfile": map[string]any{
				"networkInterfaces": []any{
					map[string]any{"id": c.nicID(name)},
				},
			},
		},
	}
	_, status, err := c.do(ctx, http.MethodPut, c.vmPath(name), body)
	if err != nil {
		return platform.Fail("create vm: %v", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return platform.Fail("create vm: status %d", status)
	}
	return platform.OK(map[string]any{"name": name, "size": size, "location": location, "state": "provisioning"})
}

func (c *Client) StartVM(ctx context.Context, name string) platform.Result {
	return c.powerOperation(ctx, name, "start", "starting")
}

// StopVM deallocates rather than just powering off, so the VM stops billing.
func (c *Client) StopVM(ctx context.Context, name string) platform.Result {
	return c.powerOperation(ctx, name, "deallocate", "stopping")
}

func (c *Client) DeleteVM(ctx context.Context, name string) platform.Result {
	if name == "" {
		return platform.Fail("vm name is required")
	}
	_, status, err := c.do(ctx, http.MethodDelete, c.vmPath(name), nil)
	if err != nil {
		return platform.Fail("delete vm: %v", err)
	}
	if status != http.StatusOK && status != http.StatusAccepted && status != http.StatusNoContent {
		return platform.Fail("delete vm: status %d", status)
	}
	return platform.OK(map[string]any{"name": name, "state": "deleting"})
}

func (c *Client) powerOperation(ctx context.Context, name, action, state string) platform.Result {
	if name == "" {
		return platform.Fail("vm name is required")
	}
	_, status, err := c.do(ctx, http.MethodPost, c.vmPath(name)+"/"+action, nil)
	if err != nil {
		return platform.Fail("%s vm: %v", action, err)
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return platform.Fail("%s vm: status %d", action, status)
	}
	return platform.OK(map[string]any{"name": name, "state": state})
}

func (c *Client) vmPath(name string) string {
	base := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Compute/virtualMachines",
		c.config.SubscriptionID, c.config.ResourceGroup)
	if name == "" {
		return base
	}
	return base + "/" + name
}

func (c *Client) nicID(vmName string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/networkInterfaces/%s-nic",
		c.config.SubscriptionID, c.config.ResourceGroup, vmName)
}

func (c *Client) do(ctx context.Context, method, path string, body map[string]any) (json.RawMessage, int, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path + "?api-version=" + apiVersion

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return payload, resp.StatusCode, nil
}
