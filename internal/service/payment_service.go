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
	"github.com/poolpay/poolpay/internal/upi"
)

// Amounts accepted on requests and payments, in rupees.
var (
	minAmount = decimal.NewFromInt(1)
	maxAmount = decimal.NewFromInt(100000)
)

// PaymentService serves payment requests, responses, merchant payments,
// and the transaction ledger.
type PaymentService struct {
	store      storage.Store
	groups     *GroupService
	lifecycle  *ledger.Lifecycle
	reconciler *ledger.Reconciler
	remainder  ledger.RemainderPolicy
}

// NewPaymentService creates a new PaymentService with the given storage
// backend and split-remainder policy.
func NewPaymentService(store storage.Store, remainder ledger.RemainderPolicy) *PaymentService {
	return &PaymentService{
		store:      store,
		groups:     NewGroupService(store),
		lifecycle:  ledger.NewLifecycle(store),
		reconciler: ledger.NewReconciler(store),
		remainder:  remainder,
	}
}

func validAmount(amount decimal.Decimal) error {
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: must be between %s and %s", ledger.ErrInvalidAmount, minAmount, maxAmount)
	}
	return nil
}

type requestResponse struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"groupId"`
	MemberID    string          `json:"memberId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	RequestedAt int64           `json:"requestedAt"`
	RespondedAt int64           `json:"respondedAt,omitempty"`
}

func toRequestResponse(r *models.PaymentRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		GroupID:     r.GroupID,
		MemberID:    r.MemberID,
		Amount:      r.Amount,
		Description: r.Description,
		Mode:        string(r.Mode),
		Status:      string(r.Status),
		RequestedAt: r.RequestedAt,
		RespondedAt: r.RespondedAt,
	}
}

type transactionResponse struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"groupId"`
	MemberID    string          `json:"memberId,omitempty"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   int64           `json:"createdAt"`
}

func toTransactionResponse(t *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		GroupID:     t.GroupID,
		MemberID:    t.MemberID,
		Type:        string(t.Type),
		Amount:      t.Amount,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

type createRequestsRequest struct {
	TotalAmount decimal.Decimal `json:"totalAmount" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Mode        string          `json:"mode"`
}

// CreateRequests fans a total out across all group members: one pending
// request per member, each with its split share and a UPI collect URI.
// Admins only.
func (s *PaymentService) CreateRequests(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.groups.requireAdmin(c, groupID); !ok {
		return
	}

	var req createRequestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validAmount(req.TotalAmount); err != nil {
		respondError(c, err)
		return
	}

	mode := models.ModeP2P
	switch req.Mode {
	case "", string(models.ModeP2P):
	case string(models.ModeEscrow):
		mode = models.ModeEscrow
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown payment mode %q", req.Mode)})
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

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		slog.Error("CreateRequests failed to list members", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	shares, err := ledger.ComputeShares(req.TotalAmount, len(members), s.remainder)
	if err != nil {
		respondError(c, err)
		return
	}

	type createdRequest struct {
		Request    requestResponse `json:"request"`
		CollectURI string          `json:"collectUri"`
	}
	created := make([]createdRequest, 0, len(members))

	for i, member := range members {
		pr := models.NewPaymentRequest(groupID, member.ID, shares[i], req.Description, mode)
		if err := s.store.CreateRequest(ctx, pr); err != nil {
			slog.Error("CreateRequests failed to create request",
				"group_id", groupID, "member_id", member.ID, "error", err)
			respondError(c, err)
			return
		}

		payee := member.UpiID
		if mode == models.ModeEscrow {
			payee = upi.EscrowAddress(groupID)
		}
		uri := upi.BuildPaymentURI(payee, upi.MinorUnits(shares[i]), upi.PayeeName, req.Description)

		created = append(created, createdRequest{
			Request:    toRequestResponse(pr),
			CollectURI: uri,
		})
	}

	slog.Info("Payment requests sent",
		"group_id", groupID,
		"total", req.TotalAmount,
		"mode", mode,
		"count", len(created),
	)
	c.JSON(http.StatusCreated, gin.H{"requests": created})
}

// ListGroupRequests returns a group's requests, newest first. Members only.
func (s *PaymentService) ListGroupRequests(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.groups.requireMember(c, groupID); !ok {
		return
	}

	requests, err := s.store.ListRequestsByGroup(c.Request.Context(), groupID)
	if err != nil {
		slog.Error("ListGroupRequests failed", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	responses := make([]requestResponse, len(requests))
	for i, r := range requests {
		responses[i] = toRequestResponse(r)
	}
	c.JSON(http.StatusOK, gin.H{"requests": responses})
}

// ListMyRequests returns all requests addressed to the caller across their
// groups, newest first within each group.
func (s *PaymentService) ListMyRequests(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	groups, err := s.store.ListGroupsByUser(ctx, userID)
	if err != nil {
		slog.Error("ListMyRequests failed to list groups", "error", err)
		respondError(c, err)
		return
	}

	var responses []requestResponse
	for _, group := range groups {
		member, err := s.store.GetMemberByUser(ctx, group.ID, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		requests, err := s.store.ListRequestsByMember(ctx, member.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, r := range requests {
			responses = append(responses, toRequestResponse(r))
		}
	}

	c.JSON(http.StatusOK, gin.H{"requests": responses})
}

type respondRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// Respond accepts or rejects the request on behalf of the calling member.
func (s *PaymentService) Respond(c *gin.Context) {
	requestID := c.Param("requestId")

	var body respondRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	decision := ledger.Decision(body.Decision)
	if decision != ledger.DecisionAccept && decision != ledger.DecisionReject {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown decision %q", body.Decision)})
		return
	}

	ctx := c.Request.Context()
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Resolve the caller to their membership in the request's group; the
	// lifecycle enforces that it matches the addressee.
	member, err := s.store.GetMemberByUser(ctx, req.GroupID, middleware.GetUserID(c))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, ledger.ErrForbidden)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := s.lifecycle.Respond(ctx, requestID, decision, member.ID)
	if err != nil {
		slog.Warn("Respond failed",
			"request_id", requestID, "decision", decision, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": toRequestResponse(updated)})
}

// Expire transitions a pending request to expired. Hook for an external
// scheduler; group admins only.
func (s *PaymentService) Expire(c *gin.Context) {
	requestID := c.Param("requestId")

	ctx := c.Request.Context()
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, ok := s.groups.requireAdmin(c, req.GroupID); !ok {
		return
	}

	updated, err := s.lifecycle.Expire(ctx, requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": toRequestResponse(updated)})
}

type payMerchantRequest struct {
	MerchantName string          `json:"merchantName" binding:"required"`
	MerchantID   string          `json:"merchantId" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Note         string          `json:"note"`
	MerchantRef  string          `json:"merchantRef"`
}

// PayMerchant disburses from the pool to a merchant and returns the
// upi://pay URI for the platform to open. Admins only.
func (s *PaymentService) PayMerchant(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.groups.requireAdmin(c, groupID); !ok {
		return
	}

	var req payMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validAmount(req.Amount); err != nil {
		respondError(c, err)
		return
	}

	group, err := s.reconciler.ApplyMerchantPayment(
		c.Request.Context(), groupID, req.Amount, req.MerchantName, req.MerchantRef,
	)
	if err != nil {
		slog.Warn("PayMerchant failed",
			"group_id", groupID, "merchant", req.MerchantName, "amount", req.Amount, "error", err)
		respondError(c, err)
		return
	}

	note := req.Note
	if note == "" {
		note = "Payment from " + group.Name
	}
	payee := upi.NormalizePayee(req.MerchantID)
	uri := upi.BuildPaymentURI(payee, upi.MinorUnits(req.Amount), req.MerchantName, note)

	c.JSON(http.StatusOK, gin.H{
		"group":      toGroupResponse(group),
		"paymentUri": uri,
	})
}

// ListTransactions returns the group's ledger, oldest first. Members only.
func (s *PaymentService) ListTransactions(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, ok := s.groups.requireMember(c, groupID); !ok {
		return
	}

	txs, err := s.store.ListTransactions(c.Request.Context(), groupID)
	if err != nil {
		slog.Error("ListTransactions failed", "group_id", groupID, "error", err)
		respondError(c, err)
		return
	}

	responses := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		responses[i] = toTransactionResponse(tx)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": responses})
}
