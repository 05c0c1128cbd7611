package devserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
)

// Seed helpers populate pre-existing state without broadcasting events, the
// same way rows created before a client connects wouldn't be pushed to it.

// SeedChannel adds a channel and returns it.
func (s *Server) SeedChannel(name, description string, members []channels.Member) *channels.Channel {
	ch := &channels.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Members:     members,
	}
	s.mu.Lock()
	s.channels[ch.ID] = ch
	s.mu.Unlock()
	return ch
}

// SeedPost adds a post to a channel and returns it.
func (s *Server) SeedPost(channelID string, author posts.Author, content string, createdAt time.Time) *posts.Post {
	post := &posts.Post{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Content:   content,
		Author:    author,
		CreatedAt: createdAt,
		Media:     []posts.Media{},
		Reactions: []string{},
		Comments:  []*posts.Comment{},
	}
	s.mu.Lock()
	s.posts[post.ID] = post
	s.mu.Unlock()
	return post
}

// SeedComment adds a comment to a post and returns it, or nil when the post
// doesn't exist.
func (s *Server) SeedComment(postID string, author posts.Author, content string) *posts.Comment {
	comment := &posts.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil
	}
	p.Comments = append(p.Comments, comment)
	return comment
}
