package external

import (
	"context"
	"fmt"

	"github.com/yuqie6/SkillLedger/internal/service"
)

// MetadataUploader 把元数据文档上传到内容寻址存储网关
type MetadataUploader struct {
	c *client
}

func NewMetadataUploader(cfg Config) *MetadataUploader {
	return &MetadataUploader{c: newClient("uploader", cfg)}
}

type uploadResponse struct {
	URI string `json:"uri"`
}

// UploadMetadata POST /metadata，返回内容地址
func (u *MetadataUploader) UploadMetadata(ctx context.Context, doc *service.MetadataDocument) (string, error) {
	body, err := doc.JSON()
	if err != nil {
		return "", err
	}
	var resp uploadResponse
	if err := u.c.postJSON(ctx, "/metadata", body, &resp); err != nil {
		return "", fmt.Errorf("上传元数据失败: %w", err)
	}
	if resp.URI == "" {
		return "", fmt.Errorf("上传元数据失败: 响应缺少 uri")
	}
	return resp.URI, nil
}
