// Friendship HTTP handlers.
//
// User-facing:
//   - POST /friend-requests     (file a request for an account)
//   - GET  /friendships         (caller's friendships)
//   - GET  /gift-check          (eligibility probe)
//
// Admin:
//   - GET    /admin/friend-requests
//   - POST   /admin/friend-requests/{id}/approve|reject
//   - DELETE /admin/friendships/{id}
//   - POST   /admin/friendships/{id}/recheck
//   - POST   /admin/friendships/{id}/reset-notification
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FriendRequestRequest is the JSON payload for filing a friendship request.
type FriendRequestRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Nickname  string `json:"nickname" binding:"required"`
	Tag       string `json:"tag"`
}

// DecideRequestRequest is the JSON payload for admin decisions.
type DecideRequestRequest struct {
	Note string `json:"note"`
}

// CreateFriendRequest files a pending friendship request for the caller.
func (h *Handlers) CreateFriendRequest(c *gin.Context) {
	var req FriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "account_id and nickname required")
		return
	}

	r, err := h.friends.Request(c.Request.Context(), userID(c), displayName(c), req.AccountID, req.Nickname, req.Tag)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListMyFriendships returns the caller's friendships.
func (h *Handlers) ListMyFriendships(c *gin.Context) {
	items, err := h.friends.ListFriends(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"friendships": items})
}

// GiftCheck probes whether a user may receive gifts on an account right now.
func (h *Handlers) GiftCheck(c *gin.Context) {
	uid := c.Query("user_id")
	if uid == "" {
		uid = userID(c)
	}
	accountID := c.Query("account_id")
	if accountID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "account_id required")
		return
	}

	check, err := h.friends.CanGiftExternal(c.Request.Context(), uid, accountID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, check)
}

// ListFriendRequests returns all pending requests, oldest first.
func (h *Handlers) ListFriendRequests(c *gin.Context) {
	items, err := h.friends.PendingRequests(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"requests": items})
}

// ApproveFriendRequest approves a pending request, creating the friendship
// and consuming a friend slot.
func (h *Handlers) ApproveFriendRequest(c *gin.Context) {
	var req DecideRequestRequest
	_ = c.ShouldBindJSON(&req)

	f, err := h.friends.Approve(c.Request.Context(), c.Param("id"), adminID(c), req.Note)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// RejectFriendRequest rejects a pending request.
func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	var req DecideRequestRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.friends.Reject(c.Request.Context(), c.Param("id"), adminID(c), req.Note); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteFriendship removes a friendship and releases its friend slot.
func (h *Handlers) DeleteFriendship(c *gin.Context) {
	if err := h.friends.Remove(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RecheckFriendship clears the notification stamp and re-evaluates the
// friendship immediately.
func (h *Handlers) RecheckFriendship(c *gin.Context) {
	check, err := h.friends.ForceRecheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, check)
}

// ResetFriendshipNotification re-arms the one-time eligibility notification.
func (h *Handlers) ResetFriendshipNotification(c *gin.Context) {
	if err := h.friends.ResetNotified(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
