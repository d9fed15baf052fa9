// Package syncclient 是画布服务的 Go 客户端：Client 封装 HTTP 接口，
// Session 在其上实现轮询同步、在线心跳和本地撤销。
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
)

// APIError 是服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api: %d %s", e.Status, e.Message)
}

// IsStatus 判断 err 是否为指定状态码的 APIError
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// FetchResult 是一次增量读取的结果
type FetchResult struct {
	Events    []dto.CanvasEventDTO
	ClearedAt *time.Time // 房间从未清空时为 nil
}

// Client 调用画布服务的 REST 接口，所有请求携带 Bearer token
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// ClientOption 配置 Client
type ClientOption func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient 创建 Client，baseURL 形如 http://localhost:8080
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func roomPath(code string, parts ...string) string {
	p := "/api/rooms/" + url.PathEscape(code)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// do 发送请求并把 JSON 响应解码到 out (可为 nil)，返回响应头
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody dto.ErrorDTO
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return resp.Header, &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil {
		if raw, ok := out.(*[]byte); ok {
			*raw, err = io.ReadAll(resp.Body)
			return resp.Header, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return resp.Header, nil
}

// CreateRoom 创建房间，nil 字段由服务端视为 true
func (c *Client) CreateRoom(ctx context.Context, isPublic, allowDrawing *bool) (*dto.RoomDTO, error) {
	var room dto.RoomDTO
	req := dto.CreateRoomRequest{IsPublic: isPublic, AllowDrawing: allowDrawing}
	if _, err := c.do(ctx, http.MethodPost, "/api/rooms", nil, req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom 按房间码查找
func (c *Client) GetRoom(ctx context.Context, code string) (*dto.RoomDTO, error) {
	var room dto.RoomDTO
	if _, err := c.do(ctx, http.MethodGet, roomPath(code), nil, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateSettings 修改房间设置，仅创建者可用
func (c *Client) UpdateSettings(ctx context.Context, code string, req dto.UpdateSettingsRequest) (*dto.RoomDTO, error) {
	var room dto.RoomDTO
	if _, err := c.do(ctx, http.MethodPut, roomPath(code, "settings"), nil, req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Join 加入房间
func (c *Client) Join(ctx context.Context, code string) (*dto.ParticipantDTO, error) {
	var p dto.ParticipantDTO
	if _, err := c.do(ctx, http.MethodPost, roomPath(code, "join"), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Leave 离开房间
func (c *Client) Leave(ctx context.Context, code string) error {
	_, err := c.do(ctx, http.MethodPost, roomPath(code, "leave"), nil, nil, nil)
	return err
}

// Heartbeat 刷新在线状态
func (c *Client) Heartbeat(ctx context.Context, code string) error {
	_, err := c.do(ctx, http.MethodPost, roomPath(code, "heartbeat"), nil, nil, nil)
	return err
}

// Participants 读取在线参与者
func (c *Client) Participants(ctx context.Context, code string) ([]dto.ParticipantDTO, error) {
	var ps []dto.ParticipantDTO
	if _, err := c.do(ctx, http.MethodGet, roomPath(code, "participants"), nil, nil, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Append 追加一条画布事件，返回服务端分配了 id 和时间戳的事件
func (c *Client) Append(ctx context.Context, code string, tool domain.Tool, data json.RawMessage) (*dto.CanvasEventDTO, error) {
	var event dto.CanvasEventDTO
	req := dto.AppendEventRequest{Tool: tool, Data: data}
	if _, err := c.do(ctx, http.MethodPost, roomPath(code, "canvas"), nil, req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// FetchSince 读取 since 之后的事件，since 为 nil 时读取完整日志
func (c *Client) FetchSince(ctx context.Context, code string, since *time.Time) (*FetchResult, error) {
	var query url.Values
	if since != nil {
		query = url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}
	}
	var events []dto.CanvasEventDTO
	header, err := c.do(ctx, http.MethodGet, roomPath(code, "canvas"), query, nil, &events)
	if err != nil {
		return nil, err
	}

	res := &FetchResult{Events: events}
	if raw := header.Get(dto.ClearedAtHeader); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("bad %s header %q: %w", dto.ClearedAtHeader, raw, err)
		}
		res.ClearedAt = &t
	}
	return res, nil
}

// Clear 清空画布，仅创建者可用，返回清空时间
func (c *Client) Clear(ctx context.Context, code string) (time.Time, error) {
	var body struct {
		Success   bool      `json:"success"`
		ClearedAt time.Time `json:"clearedAt"`
	}
	if _, err := c.do(ctx, http.MethodDelete, roomPath(code, "canvas"), nil, nil, &body); err != nil {
		return time.Time{}, err
	}
	return body.ClearedAt, nil
}

// Preview 下载服务端渲染的 PNG
func (c *Client) Preview(ctx context.Context, code string) ([]byte, error) {
	var png []byte
	if _, err := c.do(ctx, http.MethodGet, roomPath(code, "preview"), nil, nil, &png); err != nil {
		return nil, err
	}
	return png, nil
}

// Notices 订阅房间的变更提示。连接断开或 ctx 结束时关闭返回的 channel。
func (c *Client) Notices(ctx context.Context, code string) (<-chan domain.ChangeNotice, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/rooms/" + url.PathEscape(code)
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket upgrade rejected"}
		}
		return nil, fmt.Errorf("dial notices: %w", err)
	}

	out := make(chan domain.ChangeNotice, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var notice domain.ChangeNotice
			if err := conn.ReadJSON(&notice); err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).WithField("code", code).Debug("Notice stream closed")
				}
				return
			}
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
