package posts

import (
	"strings"
	"time"

	"github.com/rivo/uniseg"
)

const (
	// maxContentGraphemes is the maximum length for post and comment content in graphemes
	maxContentGraphemes = 5000
)

// Author identifies the user who wrote a post or comment.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Media is a file attached to a post, already persisted in object storage.
type Media struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Kind     string `json:"kind"` // "image", "video", "audio", "file"
	Filename string `json:"filename"`
}

// Comment is a reply on a post.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"postId"`
	Content   string     `json:"content"`
	Author    Author     `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// Post is a channel post with its nested media, reactions and comments.
// Reactions holds the ids of users who reacted; a user appears at most once.
type Post struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	Content   string     `json:"content"`
	Author    Author     `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	Media     []Media    `json:"media"`
	Reactions []string   `json:"reactions"`
	Comments  []*Comment `json:"comments"`
}

// HasReaction reports whether the given user has reacted to the post.
func (p *Post) HasReaction(userID string) bool {
	for _, id := range p.Reactions {
		if id == userID {
			return true
		}
	}
	return false
}

// AddReaction records a reaction by the given user.
// No-op if the user already reacted, preserving the one-reaction-per-user invariant.
func (p *Post) AddReaction(userID string) {
	if p.HasReaction(userID) {
		return
	}
	p.Reactions = append(p.Reactions, userID)
}

// RemoveReaction removes the given user's reaction, if present.
func (p *Post) RemoveReaction(userID string) {
	for i, id := range p.Reactions {
		if id == userID {
			p.Reactions = append(p.Reactions[:i], p.Reactions[i+1:]...)
			return
		}
	}
}

// FindComment returns the comment with the given id, or nil.
func (p *Post) FindComment(commentID string) *Comment {
	for _, c := range p.Comments {
		if c.ID == commentID {
			return c
		}
	}
	return nil
}

// RemoveComment removes the comment with the given id and reports whether it was present.
func (p *Post) RemoveComment(commentID string) bool {
	for i, c := range p.Comments {
		if c.ID == commentID {
			p.Comments = append(p.Comments[:i], p.Comments[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the post, including nested media, reactions and comments.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Media != nil {
		clone.Media = make([]Media, len(p.Media))
		copy(clone.Media, p.Media)
	}
	if p.Reactions != nil {
		clone.Reactions = make([]string, len(p.Reactions))
		copy(clone.Reactions, p.Reactions)
	}
	if p.Comments != nil {
		clone.Comments = make([]*Comment, len(p.Comments))
		for i, c := range p.Comments {
			clone.Comments[i] = c.Clone()
		}
	}
	return &clone
}

// Clone returns a copy of the comment.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ValidateContent checks post/comment text against the content rules.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentEmpty
	}
	if uniseg.GraphemeClusterCount(content) > maxContentGraphemes {
		return ErrContentTooLong
	}
	return nil
}
