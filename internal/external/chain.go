package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// ChainClient 调用签名服务更新实体的链上记录
type ChainClient struct {
	c *client
}

// NewChainClient 链上更新只尝试一次：超时的请求可能已经提交，重试交给待同步队列
func NewChainClient(cfg Config) *ChainClient {
	cfg.MaxRetries = 0
	return &ChainClient{c: newClient("chain", cfg)}
}

type updateRecordRequest struct {
	EntityID string `json:"entity_id"`
	URI      string `json:"uri"`
}

type updateRecordResponse struct {
	Signature string `json:"signature"`
}

// UpdateOnChainRecord POST /records/{entityID}，返回交易签名
func (c *ChainClient) UpdateOnChainRecord(ctx context.Context, entityID, uri string) (string, error) {
	body, err := json.Marshal(updateRecordRequest{EntityID: entityID, URI: uri})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}
	var resp updateRecordResponse
	if err := c.c.postJSON(ctx, "/records/"+url.PathEscape(entityID), body, &resp); err != nil {
		return "", fmt.Errorf("更新链上记录失败: %w", err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("更新链上记录失败: 响应缺少 signature")
	}
	return resp.Signature, nil
}
