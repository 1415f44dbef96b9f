package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Клиент внешнего сервиса авторизации. Ролевую логику леджер не реализует:
// сервис отвечает allow/deny для актора и целевых ресурсов.
type GuardClient struct {
	client *http.Client
	url    string
}

func NewGuardClient() (*GuardClient, error) {
	// config
	host := os.Getenv("GUARD_HOST")
	if host == "" {
		return nil, fmt.Errorf("env GUARD_HOST is not set")
	}
	port := os.Getenv("GUARD_PORT")
	if port == "" {
		return nil, fmt.Errorf("env GUARD_PORT is not set")
	}

	return &GuardClient{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    "http://" + host + ":" + port + "/check",
	}, nil
}

type checkRequest struct {
	Actor    string `json:"actorId"`
	Role     string `json:"actorRole"`
	Customer string `json:"targetCustomerId,omitempty"`
	Business string `json:"targetBusinessId,omitempty"`
}

type checkResponse struct {
	Allow bool `json:"allow"`
}

func (g *GuardClient) CanAct(ctx context.Context, actor string, role string, customer string, business string) (bool, error) {
	body, err := json.Marshal(checkRequest{actor, role, customer, business})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("guard response: %s", resp.Status)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	check := &checkResponse{}
	err = json.Unmarshal(answer, check)
	if err != nil {
		return false, err
	}
	return check.Allow, nil
}
