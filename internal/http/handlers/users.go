package handlers

import (
	"net/http"

	"github.com/relaygram/server/internal/chatlog"
	"github.com/relaygram/server/internal/directory"
	"github.com/relaygram/server/internal/middleware"
	"github.com/relaygram/server/internal/model"
)

// UserHandler serves the directory and conversation read endpoints. All of
// them sit behind the session middleware.
type UserHandler struct {
	directory *directory.Directory
	chatlog   *chatlog.Log
}

// NewUserHandler creates a new user handler.
func NewUserHandler(dir *directory.Directory, chat *chatlog.Log) *UserHandler {
	return &UserHandler{directory: dir, chatlog: chat}
}

type userEntry struct {
	PhoneNumber string             `json:"phoneNumber"`
	Username    *string            `json:"username"`
	LastMessage *model.LastMessage `json:"lastMessage"`
}

// HandleListUsers handles GET /api/users: every identity except the caller,
// each annotated with the last message of their shared conversation.
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	phone, ok := middleware.GetPhone(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	entries := make([]userEntry, 0)
	for _, u := range h.directory.All() {
		if u.PhoneNumber == phone {
			continue
		}
		entries = append(entries, userEntry{
			PhoneNumber: u.PhoneNumber,
			Username:    u.Username,
			LastMessage: h.chatlog.LastMessage(phone, u.PhoneNumber),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": entries})
}

type searchEntry struct {
	directory.SearchResult
	LastMessage *model.LastMessage `json:"lastMessage"`
}

// HandleSearch handles GET /api/users/search. The directory decides whether
// to synthesize a "not yet a contact" entry; no identity is created here.
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	phone, ok := middleware.GetPhone(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	results := h.directory.Search(phone, r.URL.Query().Get("query"))
	entries := make([]searchEntry, 0, len(results))
	for _, res := range results {
		e := searchEntry{SearchResult: res}
		if res.Exists {
			e.LastMessage = h.chatlog.LastMessage(phone, res.PhoneNumber)
		}
		entries = append(entries, e)
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": entries})
}

type chatEntry struct {
	PhoneNumber string             `json:"phoneNumber"`
	Username    *string            `json:"username"`
	LastMessage *model.LastMessage `json:"lastMessage"`
	UnreadCount int                `json:"unreadCount"`
}

// HandleListChats handles GET /api/chats: the caller's conversation
// partners. Read-state is not tracked, so unreadCount is always zero.
func (h *UserHandler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	phone, ok := middleware.GetPhone(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	chats := make([]chatEntry, 0)
	for _, partner := range h.chatlog.Partners(phone) {
		entry := chatEntry{PhoneNumber: partner}
		if u, ok := h.directory.Find(partner); ok {
			entry.Username = u.Username
		}
		entry.LastMessage = h.chatlog.LastMessage(phone, partner)
		chats = append(chats, entry)
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// HandleHistory handles GET /api/messages?withPhone=...: the full ordered
// conversation with one counterpart.
func (h *UserHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	phone, ok := middleware.GetPhone(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	withPhone := r.URL.Query().Get("withPhone")
	if withPhone == "" {
		respondWithError(w, http.StatusBadRequest, "withPhone is required")
		return
	}
	if _, ok := h.directory.Find(withPhone); !ok {
		respondWithError(w, http.StatusNotFound, "user not found")
		return
	}

	msgs := h.chatlog.Conversation(phone, withPhone)
	if msgs == nil {
		msgs = make([]model.Message, 0)
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
