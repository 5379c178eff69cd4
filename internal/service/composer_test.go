package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilirelay/internal/core/domain"
)

func TestMetadataText(t *testing.T) {
	text := NewComposer("BiliBot", false).MetadataText(testMetadata)

	assert.Equal(t, strings.Join([]string{
		"🎬 标题: Test video",
		"👤 UP主: uploader",
		"🔢 播放量: 100",
		"❤️ 点赞: 20",
		"🏆 投币: 3",
		"🔄 分享: 4",
		"💬 评论: 5",
	}, "\n"), text)

	withDuration := NewComposer("BiliBot", true).MetadataText(testMetadata)
	assert.Contains(t, withDuration, "👤 UP主: uploader\n⏱️ 时长: 2:05\n🔢 播放量: 100")
}

func TestComposeTooLarge(t *testing.T) {
	chain := NewComposer("BiliBot", false).TooLarge("10", testMetadata, 12.5)

	require.Len(t, chain, 1)
	nodes := chain[0].Nodes
	require.Len(t, nodes, 2)
	assert.Equal(t, "❌ 视频大小超过 12.5MB，无法下载", nodes[1].Content[0].Text)
	assert.Empty(t, chain.VideoPaths())
}

func TestComposeDelivered(t *testing.T) {
	art := &domain.DownloadArtifact{VideoID: "BV1", VideoPath: "/videos/BV1.mp4"}
	chain := NewComposer("BiliBot", false).Delivered("10", testMetadata, art)

	require.Len(t, chain, 1)
	nodes := chain[0].Nodes
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, "10", n.UIN)
		assert.Equal(t, "BiliBot", n.Name)
		assert.Len(t, n.Content, 1)
	}
	assert.Equal(t, domain.SegmentText, nodes[0].Content[0].Type)
	assert.Equal(t, domain.Video("/videos/BV1.mp4"), nodes[1].Content[0])
}
