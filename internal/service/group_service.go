package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/poolpay/poolpay/internal/ledger"
	"github.com/poolpay/poolpay/internal/middleware"
	"github.com/poolpay/poolpay/internal/models"
	"github.com/poolpay/poolpay/internal/storage"
)

// GroupService serves group and membership operations.
type GroupService struct {
	store      storage.Store
	reconciler *ledger.Reconciler
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{
		store:      store,
		reconciler: ledger.NewReconciler(store),
	}
}

type groupResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TotalPooled decimal.Decimal `json:"totalPooled"`
	Status      string          `json:"status"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   int64           `json:"createdAt"`
}

type memberResponse struct {
	ID                string          `json:"id"`
	GroupID           string          `json:"groupId"`
	UserID            string          `json:"userId"`
	DisplayName       string          `json:"displayName"`
	UpiID             string          `json:"upiId"`
	Role              string          `json:"role"`
	ContributedAmount decimal.Decimal `json:"contributedAmount"`
	JoinedAt          int64           `json:"joinedAt"`
}

func toGroupResponse(g *models.Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		TotalPooled: g.TotalPooled,
		Status:      string(g.Status),
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

func toMemberResponse(m *models.Member) memberResponse {
	return memberResponse{
		ID:                m.ID,
		GroupID:           m.GroupID,
		UserID:            m.UserID,
		DisplayName:       m.DisplayName,
		UpiID:             m.UpiID,
		Role:              string(m.Role),
		ContributedAmount: m.ContributedAmount,
		JoinedAt:          m.JoinedAt,
	}
}

// requireMember resolves the caller's membership in a group. A missing
// membership is a 403; storage failures surface as themselves.
func (s *GroupService) requireMember(c *gin.Context, groupID string) (*models.Member, bool) {
	member, err := s.store.GetMemberByUser(c.Request.Context(), groupID, middleware.GetUserID(c))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, ledger.ErrForbidden)
		return nil, false
	}
	if err != nil {
		slog.Error("Member lookup failed", "group_id", groupID, "error", err)
		respondError(c, err)
		return nil, false
	}
	return member, true
}

// requireAdmin is requireMember plus an admin-role check.
func (s *GroupService) requireAdmin(c *gin.Context, groupID string) (*models.Member, bool) {
	member, ok := s.requireMember(c, groupID)
	if !ok {
		return nil, false
	}
	if member.Role != models.RoleAdmin {
		respondError(c, fmt.Errorf("admin role required: %w", ledger.ErrForbidden))
		return nil, false
	}
	return member, true
}

type createGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	DisplayName string `json:"displayName" binding:"required"`
	UpiID       string `json:"upiId" binding:"required"`
}

// CreateGroup creates a group and enrolls the caller as its admin.
func (s *GroupService) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	group := models.NewGroup(req.Name, req.Description, userID)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		respondError(c, err)
		return
	}

	creator := models.NewMember(group.ID, userID, req.DisplayName, req.UpiID, models.RoleAdmin)
	if err := s.store.CreateMember(ctx, creator); err != nil {
		slog.Error("CreateGroup failed to enroll creator", "group_id", group.ID, "error", err)
		respondError(c, err)
		return
	}

	slog.Info("Group created", "group_id", group.ID, "created_by", userID)
	c.JSON(http.StatusCreated, gin.H{
		"group":  toGroupResponse(group),
		"member": toMemberResponse(creator),
	})
}

// GetGroup returns a group with its members. Members only.
func (s *GroupService) GetGroup(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.requireMember(c, groupID); !ok {
		return
	}

	ctx := c.Request.Context()
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		slog.Error("GetGroup failed to list members", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	memberResponses := make([]memberResponse, len(members))
	for i, m := range members {
		memberResponses[i] = toMemberResponse(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"group":   toGroupResponse(group),
		"members": memberResponses,
	})
}

// ListGroups returns the groups the caller belongs to.
func (s *GroupService) ListGroups(c *gin.Context) {
	groups, err := s.store.ListGroupsByUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		respondError(c, err)
		return
	}

	responses := make([]groupResponse, len(groups))
	for i, g := range groups {
		responses[i] = toGroupResponse(g)
	}
	c.JSON(http.StatusOK, gin.H{"groups": responses})
}

type addMemberRequest struct {
	UserID      string `json:"userId" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	UpiID       string `json:"upiId" binding:"required"`
	Role        string `json:"role"`
}

// AddMember invites a user into the group. Admins only.
func (s *GroupService) AddMember(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.requireAdmin(c, groupID); !ok {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role := models.RoleMember
	switch req.Role {
	case "", string(models.RoleMember):
	case string(models.RoleAdmin):
		role = models.RoleAdmin
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown role %q", req.Role)})
		return
	}

	ctx := c.Request.Context()
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	if group.Status != models.GroupActive {
		respondError(c, fmt.Errorf("%w: group is %s", ledger.ErrInvalidState, group.Status))
		return
	}

	member := models.NewMember(groupID, req.UserID, req.DisplayName, req.UpiID, role)
	if err := s.store.CreateMember(ctx, member); err != nil {
		slog.Error("AddMember failed", "group_id", groupID, "user_id", req.UserID, "error", err)
		respondError(c, err)
		return
	}

	slog.Info("Member added", "group_id", groupID, "member_id", member.ID, "role", role)
	c.JSON(http.StatusCreated, gin.H{"member": toMemberResponse(member)})
}

// GetWallet returns the stored balance alongside the balance derived from
// the transaction log, exposing any drift. Members only.
func (s *GroupService) GetWallet(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.requireMember(c, groupID); !ok {
		return
	}

	ctx := c.Request.Context()
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	derived, err := s.reconciler.RecomputeBalance(ctx, groupID)
	if err != nil {
		slog.Error("GetWallet failed to recompute balance", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groupId":        group.ID,
		"storedBalance":  group.TotalPooled,
		"derivedBalance": derived,
		"drift":          group.TotalPooled.Sub(derived),
	})
}

// RepairWallet overwrites the stored balance with the derived one.
// Admins only.
func (s *GroupService) RepairWallet(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.requireAdmin(c, groupID); !ok {
		return
	}

	group, err := s.reconciler.RepairBalance(c.Request.Context(), groupID)
	if err != nil {
		slog.Error("RepairWallet failed", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": toGroupResponse(group)})
}
