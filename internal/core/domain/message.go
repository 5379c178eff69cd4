package domain

// Message is an inbound chat message delivered by the host framework.
type Message struct {
	SelfID  string
	UserID  string
	GroupID string // empty for private chats
	Text    string
}

// IsGroup reports whether the message came from a group chat.
func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

// SegmentType tells the host how to render a segment.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentVideo SegmentType = "video"
)

// Segment is one piece of node content. Path is a local file for video
// segments.
type Segment struct {
	Type SegmentType
	Text string
	Path string
}

func Text(s string) Segment { return Segment{Type: SegmentText, Text: s} }
func Video(path string) Segment { return Segment{Type: SegmentVideo, Path: path} }

// Node is one entry of a forward message, attributed to a sender.
type Node struct {
	UIN     string
	Name    string
	Content []Segment
}

// Forward is an ordered bundle of nodes delivered as one chat message.
type Forward struct {
	Nodes []Node
}

// Chain is the outbound message handed to the host. The pipeline always
// emits exactly one Forward element.
type Chain []Forward

// VideoPaths returns the paths of all video segments in the chain.
func (c Chain) VideoPaths() []string {
	var paths []string
	for _, fwd := range c {
		for _, n := range fwd.Nodes {
			for _, seg := range n.Content {
				if seg.Type == SegmentVideo {
					paths = append(paths, seg.Path)
				}
			}
		}
	}
	return paths
}
