package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
)

// Config 外部服务连接参数
type Config struct {
	BaseURL    string
	Token      string
	MaxRetries int
	Timeout    time.Duration
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API 错误: %d %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// client JSON over HTTP，带有限次数的指数退避重试
type client struct {
	name       string
	baseURL    string
	token      string
	maxRetries int
	http       *http.Client
}

func newClient(name string, cfg Config) *client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

// postJSON 发送请求并解析响应；4xx（429 除外）不重试
func (c *client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.do(ctx, path, body, out)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.WithFields(logrus.Fields{
				"target":  c.name,
				"attempt": attempt,
				"wait":    wait.String(),
			}).WithError(err).Debug("外部调用失败，准备重试")
		}),
	)
	return err
}

func (c *client) do(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
				return backoff.RetryAfter(secs)
			}
			return statusErr
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(statusErr)
		default:
			return statusErr
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return backoff.Permanent(fmt.Errorf("解析响应失败: %w", err))
	}
	return nil
}
