package devserver

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/media"
	"github.com/studioalign/studio07-sub001/internal/realtime"
)

// maxUploadBytes caps storage uploads at the largest per-kind ceiling.
const maxUploadBytes = media.MaxVideoSize

// actingUser derives the request's user from the bearer token. Dev-mode
// semantics: the token is the user id, no signature involved.
func (s *Server) actingUser(r *http.Request) posts.Author {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	author := posts.Author{ID: token}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if m := ch.FindMember(token); m != nil {
			author.DisplayName = m.DisplayName
			break
		}
	}
	return author
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	s.mu.Lock()
	ch, ok := s.channels[channelID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}
	detail := channels.ChannelDetail{Channel: *ch}
	for _, p := range s.posts {
		if p.ChannelID == channelID {
			detail.Posts = append(detail.Posts, p.Clone())
		}
	}
	s.mu.Unlock()

	sort.SliceStable(detail.Posts, func(i, j int) bool {
		return detail.Posts[i].CreatedAt.After(detail.Posts[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	s.mu.Lock()
	p, ok := s.posts[postID]
	var clone *posts.Post
	if ok {
		clone = p.Clone()
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, clone)
}

type createPostRequest struct {
	Content string        `json:"content"`
	Media   []posts.Media `json:"media"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	author := s.actingUser(r)

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := posts.ValidateContent(req.Content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, ok := s.channels[channelID]; !ok {
		s.mu.Unlock()
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}
	post := &posts.Post{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Content:   req.Content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
		Media:     req.Media,
		Reactions: []string{},
		Comments:  []*posts.Comment{},
	}
	if post.Media == nil {
		post.Media = []posts.Media{}
	}
	s.posts[post.ID] = post
	clone := post.Clone()
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityPosts, realtime.OpInsert, realtime.PostRow{
		ID:        post.ID,
		ChannelID: channelID,
		Content:   post.Content,
	})
	writeJSON(w, http.StatusCreated, clone)
}

type updateContentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := posts.ValidateContent(req.Content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	p.Content = req.Content
	p.EditedAt = &now
	channelID := p.ChannelID
	clone := p.Clone()
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityPosts, realtime.OpUpdate, realtime.PostRow{
		ID:        postID,
		ChannelID: channelID,
		Content:   req.Content,
		EditedAt:  &now,
	})
	writeJSON(w, http.StatusOK, clone)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	channelID := p.ChannelID
	delete(s.posts, postID)
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityPosts, realtime.OpDelete, realtime.PostRow{
		ID:        postID,
		ChannelID: channelID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	commentID := chi.URLParam(r, "commentID")

	s.mu.Lock()
	p, ok := s.posts[postID]
	var clone *posts.Comment
	if ok {
		clone = p.FindComment(commentID).Clone()
	}
	s.mu.Unlock()

	if clone == nil {
		http.Error(w, "comment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, clone)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	author := s.actingUser(r)

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := posts.ValidateContent(req.Content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	comment := &posts.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Content:   req.Content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	p.Comments = append(p.Comments, comment)
	channelID := p.ChannelID
	clone := comment.Clone()
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityComments, realtime.OpInsert, realtime.CommentRow{
		ID:        comment.ID,
		PostID:    postID,
		ChannelID: channelID,
		Content:   comment.Content,
	})
	writeJSON(w, http.StatusCreated, clone)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	commentID := chi.URLParam(r, "commentID")

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := posts.ValidateContent(req.Content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	c := p.FindComment(commentID)
	if c == nil {
		s.mu.Unlock()
		http.Error(w, "comment not found", http.StatusNotFound)
		return
	}
	c.Content = req.Content
	c.EditedAt = &now
	channelID := p.ChannelID
	clone := c.Clone()
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityComments, realtime.OpUpdate, realtime.CommentRow{
		ID:        commentID,
		PostID:    postID,
		ChannelID: channelID,
		Content:   req.Content,
		EditedAt:  &now,
	})
	writeJSON(w, http.StatusOK, clone)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	commentID := chi.URLParam(r, "commentID")

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok || !p.RemoveComment(commentID) {
		s.mu.Unlock()
		http.Error(w, "comment not found", http.StatusNotFound)
		return
	}
	channelID := p.ChannelID
	s.mu.Unlock()

	s.broadcast(channelID, realtime.EntityComments, realtime.OpDelete, realtime.CommentRow{
		ID:        commentID,
		PostID:    postID,
		ChannelID: channelID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleReaction applies existence-check-then-insert-or-delete
// semantics for the acting user's reaction.
func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	user := s.actingUser(r)
	if user.ID == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}
	reacted := !p.HasReaction(user.ID)
	if reacted {
		p.AddReaction(user.ID)
	} else {
		p.RemoveReaction(user.ID)
	}
	channelID := p.ChannelID
	s.mu.Unlock()

	op := realtime.OpInsert
	if !reacted {
		op = realtime.OpDelete
	}
	s.broadcast(channelID, realtime.EntityReactions, op, realtime.ReactionRow{
		PostID:    postID,
		ChannelID: channelID,
		UserID:    user.ID,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"reacted": reacted})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty upload", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > maxUploadBytes {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	mime := r.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	filename := r.URL.Query().Get("filename")
	id := uuid.NewString()

	s.mu.Lock()
	s.blobs[id] = blob{data: data, mime: mime}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, posts.Media{
		ID:       id,
		URL:      "/api/storage/" + id,
		Kind:     string(media.KindForMIME(mime)),
		Filename: filename,
	})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	blobID := chi.URLParam(r, "blobID")

	s.mu.Lock()
	b, ok := s.blobs[blobID]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", b.mime)
	_, _ = w.Write(b.data)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if m := ch.FindMember(userID); m != nil {
			writeJSON(w, http.StatusOK, posts.Author{ID: m.UserID, DisplayName: m.DisplayName})
			return
		}
	}
	http.Error(w, "profile not found", http.StatusNotFound)
}
