package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bilirelay/internal/core/domain"
)

const (
	groupForwardAction   = "send_group_forward_msg"
	privateForwardAction = "send_private_forward_msg"
)

// Client implements ports.Sender through the OneBot v11 HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			// uploading a video to the chat platform can take a while
			Timeout: 5 * time.Minute,
		},
	}
}

type segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type node struct {
	Type string   `json:"type"`
	Data nodeData `json:"data"`
}

type nodeData struct {
	Name    string    `json:"name"`
	UIN     string    `json:"uin"`
	Content []segment `json:"content"`
}

type apiResponse struct {
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
	Message string `json:"message"`
	Wording string `json:"wording"`
}

// Send delivers each forward element of chain to the chat msg came from.
func (c *Client) Send(ctx context.Context, to domain.Message, chain domain.Chain) error {
	for _, fwd := range chain {
		action, payload := forwardPayload(to, fwd)
		if err := c.call(ctx, action, payload); err != nil {
			return err
		}
	}
	return nil
}

func forwardPayload(to domain.Message, fwd domain.Forward) (string, map[string]any) {
	nodes := make([]node, 0, len(fwd.Nodes))
	for _, n := range fwd.Nodes {
		content := make([]segment, 0, len(n.Content))
		for _, seg := range n.Content {
			content = append(content, toSegment(seg))
		}
		nodes = append(nodes, node{
			Type: "node",
			Data: nodeData{Name: n.Name, UIN: n.UIN, Content: content},
		})
	}

	if to.IsGroup() {
		return groupForwardAction, map[string]any{"group_id": json.Number(to.GroupID), "messages": nodes}
	}
	return privateForwardAction, map[string]any{"user_id": json.Number(to.UserID), "messages": nodes}
}

func toSegment(seg domain.Segment) segment {
	switch seg.Type {
	case domain.SegmentVideo:
		return segment{Type: string(seg.Type), Data: map[string]any{"file": fileURI(seg.Path)}}
	default:
		return segment{Type: "text", Data: map[string]any{"text": seg.Text}}
	}
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

func (c *Client) call(ctx context.Context, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cannot encode %s payload: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s failed: status %d, body: %s", action, resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("cannot decode %s response: %w", action, err)
	}
	if result.Status != "ok" {
		return fmt.Errorf("%s failed: retcode %d: %s %s", action, result.RetCode, result.Message, result.Wording)
	}
	return nil
}
