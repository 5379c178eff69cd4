package service

import (
	"fmt"
	"strings"

	"bilirelay/internal/core/domain"
)

// Composer builds the forward message sent back to the chat.
type Composer struct {
	botName      string
	showDuration bool
}

func NewComposer(botName string, showDuration bool) *Composer {
	return &Composer{botName: botName, showDuration: showDuration}
}

// MetadataText renders the metadata block.
func (c *Composer) MetadataText(meta *domain.VideoMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 标题: %s\n", meta.Title)
	fmt.Fprintf(&b, "👤 UP主: %s\n", meta.Author)
	if c.showDuration {
		fmt.Fprintf(&b, "⏱️ 时长: %s\n", meta.Duration)
	}
	fmt.Fprintf(&b, "🔢 播放量: %d\n", meta.Views)
	fmt.Fprintf(&b, "❤️ 点赞: %d\n", meta.Likes)
	fmt.Fprintf(&b, "🏆 投币: %d\n", meta.Coins)
	fmt.Fprintf(&b, "🔄 分享: %d\n", meta.Shares)
	fmt.Fprintf(&b, "💬 评论: %d", meta.Comments)
	return b.String()
}

// TooLarge composes the metadata node plus a size-limit notice.
func (c *Composer) TooLarge(selfID string, meta *domain.VideoMetadata, limitMB float64) domain.Chain {
	return c.chain(selfID,
		domain.Text(c.MetadataText(meta)),
		domain.Text(fmt.Sprintf("❌ 视频大小超过 %gMB，无法下载", limitMB)),
	)
}

// Delivered composes the metadata node plus the video node.
func (c *Composer) Delivered(selfID string, meta *domain.VideoMetadata, art *domain.DownloadArtifact) domain.Chain {
	return c.chain(selfID,
		domain.Text(c.MetadataText(meta)),
		domain.Video(art.VideoPath),
	)
}

// chain puts every segment into its own node.
func (c *Composer) chain(selfID string, segments ...domain.Segment) domain.Chain {
	nodes := make([]domain.Node, 0, len(segments))
	for _, seg := range segments {
		nodes = append(nodes, domain.Node{
			UIN:     selfID,
			Name:    c.botName,
			Content: []domain.Segment{seg},
		})
	}
	return domain.Chain{{Nodes: nodes}}
}
