// Package api is the thin administrative CRUD surface around the
// persistence gateway. Validation failures map to 4xx, storage
// failures to 5xx, and every error body is {"error": "..."}.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chat-hub/domain"
	chaterrors "chat-hub/errors"
	"chat-hub/repositories"
	"chat-hub/search"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	log       *slog.Logger
	validate  *validator.Validate
	users     repositories.IUserRepository
	messages  repositories.IMessageRepository
	groups    repositories.IGroupRepository
	reactions repositories.IReactionRepository
	media     repositories.IMediaRepository
	index     *search.Index
}

func NewHandler(
	log *slog.Logger,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	groups repositories.IGroupRepository,
	reactions repositories.IReactionRepository,
	media repositories.IMediaRepository,
	index *search.Index,
) *Handler {
	return &Handler{
		log:       log,
		validate:  validator.New(),
		users:     users,
		messages:  messages,
		groups:    groups,
		reactions: reactions,
		media:     media,
		index:     index,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{userID}", h.getUser)
		r.Put("/{userID}/status", h.updateUserStatus)
		r.Put("/{userID}/theme", h.updateUserTheme)
		r.Put("/{userID}/status-message", h.updateUserStatusMessage)
		r.Get("/{userID}/groups", h.listUserGroups)
	})

	r.Route("/messages", func(r chi.Router) {
		r.Post("/", h.createMessage)
		r.Get("/search", h.searchMessages)
		r.Get("/{userID}", h.listMessages)
		r.Put("/{messageID}", h.editMessage)
		r.Delete("/{messageID}", h.deleteMessage)
		r.Put("/{messageID}/read", h.markRead)
		r.Get("/{messageID}/reactions", h.listReactions)
		r.Delete("/{messageID}/reactions", h.removeReaction)
		r.Get("/{messageID}/media", h.listMedia)
	})

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", h.listGroups)
		r.Post("/", h.createGroup)
		r.Get("/{groupID}", h.getGroup)
		r.Get("/{groupID}/messages", h.listGroupMessages)
		r.Get("/{groupID}/members", h.listMembers)
		r.Post("/{groupID}/members", h.addMember)
		r.Delete("/{groupID}/members/{userID}", h.removeMember)
	})

	r.Post("/reactions", h.addReaction)
	r.Post("/media", h.addMedia)

	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// storageError maps gateway failures onto the response taxonomy.
func (h *Handler) storageError(w http.ResponseWriter, err error) {
	if errors.Is(err, chaterrors.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error("Storage failure", "error", err)
	respondError(w, http.StatusInternalServerError, "storage failure")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

// --- Users ---

type createUserRequest struct {
	ID        string `json:"id" validate:"required"`
	Username  string `json:"username" validate:"required"`
	AvatarURL string `json:"avatarUrl"`
}

func (h *Handler) listUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := h.users.List()
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(chi.URLParam(r, "userID"))
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.users.Create(domain.User{
		ID:        req.ID,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsOnline *bool `json:"isOnline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsOnline == nil {
		respondError(w, http.StatusBadRequest, "invalid status data")
		return
	}
	if err := h.users.SetOnline(chi.URLParam(r, "userID"), *req.IsOnline); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) updateUserTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Theme == "" {
		respondError(w, http.StatusBadRequest, "invalid theme data")
		return
	}
	if err := h.users.SetTheme(chi.URLParam(r, "userID"), req.Theme); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) updateUserStatusMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid status message")
		return
	}
	if err := h.users.SetStatus(chi.URLParam(r, "userID"), req.Status); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Messages ---

type createMessageRequest struct {
	Content    string `json:"content" validate:"required"`
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId"`
	GroupID    int64  `json:"groupId"`
	ReplyToID  int64  `json:"replyToId"`
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.ListForUser(chi.URLParam(r, "userID"))
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *Handler) createMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ReceiverID != "" && req.GroupID != 0 {
		respondError(w, http.StatusBadRequest, "receiverId and groupId are mutually exclusive")
		return
	}
	msg, err := h.messages.Create(domain.Message{
		Content:    req.Content,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		GroupID:    req.GroupID,
		ReplyToID:  req.ReplyToID,
	})
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		respondError(w, http.StatusBadRequest, "invalid message content")
		return
	}
	msg, err := h.messages.Edit(id, req.Content)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if _, err := h.messages.SoftDelete(id); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if _, err := h.messages.MarkRead(id); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) searchMessages(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query().Get("q")
	if terms == "" {
		respondError(w, http.StatusBadRequest, "missing query")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	hits, total, err := h.index.Search(r.Context(), terms, limit)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"hits": hits, "total": total})
}

// --- Groups ---

type createGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatarUrl"`
	CreatedBy   string `json:"createdBy" validate:"required"`
}

type addMemberRequest struct {
	UserID  string `json:"userId" validate:"required"`
	IsAdmin bool   `json:"isAdmin"`
}

func (h *Handler) listGroups(w http.ResponseWriter, _ *http.Request) {
	groups, err := h.groups.List()
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "groupID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	group, err := h.groups.Get(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.groups.Create(domain.Group{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.storageError(w, err)
		return
	}
	// The owner joins as admin so it can post right away.
	if _, err := h.groups.AddMember(domain.GroupMember{
		GroupID: group.ID,
		UserID:  req.CreatedBy,
		IsAdmin: true,
	}); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *Handler) listUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListForUser(chi.URLParam(r, "userID"))
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *Handler) listGroupMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "groupID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	messages, err := h.messages.ListForGroup(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "groupID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	members, err := h.groups.Members(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "groupID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var req addMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	member, err := h.groups.AddMember(domain.GroupMember{
		GroupID: id,
		UserID:  req.UserID,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		h.storageError(w, err)
		return
	}
	group, err := h.groups.Get(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"member": member, "group": group})
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "groupID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if err := h.groups.RemoveMember(id, chi.URLParam(r, "userID")); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Reactions ---

type reactionRequest struct {
	MessageID int64  `json:"messageId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

func (h *Handler) listReactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	reactions, err := h.reactions.List(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reactions)
}

func (h *Handler) addReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	reaction, removed, err := h.reactions.Toggle(req.MessageID, req.UserID, req.Emoji)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reaction": reaction, "removed": removed})
}

func (h *Handler) removeReaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	var req struct {
		UserID string `json:"userId"`
		Emoji  string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Emoji == "" {
		respondError(w, http.StatusBadRequest, "invalid reaction data")
		return
	}
	if err := h.reactions.Remove(id, req.UserID, req.Emoji); err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Media ---

type mediaRequest struct {
	MessageID int64  `json:"messageId" validate:"required"`
	URL       string `json:"url" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
}

func (h *Handler) listMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "messageID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	items, err := h.media.ListForMessage(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) addMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.media.Add(domain.Media{
		MessageID: req.MessageID,
		URL:       req.URL,
		Type:      req.Type,
		Name:      req.Name,
		Size:      req.Size,
	})
	if err != nil {
		h.storageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}
