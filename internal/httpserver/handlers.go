package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SugboTransitLab/marketplace/pkg/booking"
	"github.com/SugboTransitLab/marketplace/pkg/drivermetrics"
	"github.com/SugboTransitLab/marketplace/pkg/settlement"
)

type httpHandler struct {
	logger      *zap.Logger
	bookings    *booking.Service
	settlements *settlement.Service
	metrics     *drivermetrics.Service
	locations   LocationStore
	timeout     time.Duration
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) handleCreateBooking(ctx *gin.Context) {
	var request createBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingType, err := booking.ParseBookingType(request.Type)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	customerID, err := booking.NewCustomerID(request.CustomerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	input := booking.CreateInput{
		Type:             bookingType,
		CustomerID:       customerID,
		CustomerName:     request.CustomerName,
		TotalAmountCents: request.TotalAmountCents,
		PackageID:        request.PackageID,
		PackageName:      request.PackageName,
		PackageCreatorID: request.PackageCreatorID,
		BookingDate:      request.BookingDate,
		PickupTime:       request.PickupTime,
		PickupAddress:    request.PickupAddress,
		DropoffAddress:   request.DropoffAddress,
		PickupLatitude:   request.PickupLatitude,
		PickupLongitude:  request.PickupLongitude,
		PassengerCount:   request.PassengerCount,
	}
	if request.PaymentStatus != "" {
		paymentStatus, err := booking.ParsePaymentStatus(request.PaymentStatus)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		input.PaymentStatus = paymentStatus
	}
	if request.RideType != "" {
		rideType, err := booking.ParseRideType(request.RideType)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		input.RideType = rideType
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.Create(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, transitionResponseFrom(result))
}

func (handler *httpHandler) handleListBookings(ctx *gin.Context) {
	filter := booking.Filter{
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	if raw := ctx.Query("status"); raw != "" {
		status, err := booking.ParseBookingStatus(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = &status
	}
	if raw := ctx.Query("type"); raw != "" {
		bookingType, err := booking.ParseBookingType(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Type = &bookingType
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	records, err := handler.bookings.List(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": records})
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	record, err := handler.bookings.Get(requestCtx, bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"booking": record})
}

func (handler *httpHandler) handleCancellationPolicy(ctx *gin.Context) {
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	policy, err := handler.bookings.GetCancellationPolicy(requestCtx, bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"policy": policy})
}

func (handler *httpHandler) handleDriverAccept(ctx *gin.Context) {
	var request driverActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	driverID, err := booking.NewDriverID(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.DriverAccept(requestCtx, bookingID, driverID, request.DriverName)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleStart(ctx *gin.Context) {
	var request driverActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	driverID, err := booking.NewDriverID(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.Start(requestCtx, bookingID, driverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleComplete(ctx *gin.Context) {
	var request completeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	driverID, err := booking.NewDriverID(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.Complete(requestCtx, bookingID, driverID, request.VerificationPhoto)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleCustomerCancel(ctx *gin.Context) {
	var request customerActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	customerID, err := booking.NewCustomerID(request.CustomerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.CustomerCancel(requestCtx, bookingID, customerID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleDriverCancel(ctx *gin.Context) {
	var request driverActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	driverID, err := booking.NewDriverID(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.DriverCancel(requestCtx, bookingID, driverID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleRebook(ctx *gin.Context) {
	var request rebookRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	customerID, err := booking.NewCustomerID(request.CustomerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.Rebook(requestCtx, bookingID, customerID, request.NewDate)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleCancelTimedOut(ctx *gin.Context) {
	var request customerActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	customerID, err := booking.NewCustomerID(request.CustomerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.CancelTimedOut(requestCtx, bookingID, customerID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, transitionResponseFrom(result))
}

func (handler *httpHandler) handleCustomerBookings(ctx *gin.Context) {
	customerID, err := booking.NewCustomerID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	records, err := handler.bookings.ListForCustomer(requestCtx, customerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": records})
}

func (handler *httpHandler) handleDriverBookings(ctx *gin.Context) {
	driverID, err := booking.NewDriverID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	records, err := handler.bookings.ListForDriver(requestCtx, driverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": records})
}

func (handler *httpHandler) handleDriverMetrics(ctx *gin.Context) {
	driverID, err := booking.NewDriverID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summary, err := handler.metrics.DriverSummary(requestCtx, driverID.String())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (handler *httpHandler) handleDriverLocation(ctx *gin.Context) {
	var request driverLocationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	driverID, err := booking.NewDriverID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if request.Latitude < -90 || request.Latitude > 90 || request.Longitude < -180 || request.Longitude > 180 {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", "coordinates out of range"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.locations.UpsertDriverLocation(requestCtx, driverID.String(),
		request.Latitude, request.Longitude, time.Now().UTC()); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleUnpaidSweep(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.ProcessUnpaidTimeouts(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sweep": result})
}

func (handler *httpHandler) handlePendingSweep(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.bookings.ProcessPendingTimeouts(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sweep": result})
}

func (handler *httpHandler) handleCreateRefund(ctx *gin.Context) {
	var request createRefundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	bookingID, err := booking.NewBookingID(request.BookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	record, err := handler.bookings.Get(requestCtx, bookingID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	refund, err := handler.settlements.CreateRefundRequest(requestCtx, record, request.Reason, request.RequestedBy)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"refund": refund})
}

func (handler *httpHandler) handleListRefunds(ctx *gin.Context) {
	filter := settlement.RefundFilter{
		Status: settlement.RefundStatus(ctx.Query("status")),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	refunds, err := handler.settlements.ListRefunds(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

func (handler *httpHandler) handleGetRefund(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	refund, err := handler.settlements.GetRefund(requestCtx, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (handler *httpHandler) handleApproveRefund(ctx *gin.Context) {
	handler.reviewRefund(ctx, handler.settlements.ApproveRefund)
}

func (handler *httpHandler) handleRejectRefund(ctx *gin.Context) {
	handler.reviewRefund(ctx, handler.settlements.RejectRefund)
}

func (handler *httpHandler) handleVoidRefund(ctx *gin.Context) {
	handler.reviewRefund(ctx, handler.settlements.VoidRefund)
}

func (handler *httpHandler) reviewRefund(ctx *gin.Context, review func(context.Context, string, string, string) (settlement.Refund, error)) {
	var request reviewRefundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	refund, err := review(requestCtx, ctx.Param("id"), request.ReviewedBy, request.Remarks)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (handler *httpHandler) handleGetPercentage(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	percentage, err := handler.settlements.OrganizationPercentage(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"percent": percentage.Percent()})
}

func (handler *httpHandler) handleUpdatePercentage(ctx *gin.Context) {
	var request updatePercentageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	percentage, err := handler.settlements.UpdateOrganizationPercentage(requestCtx, request.Percent)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"percent": percentage.Percent()})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	var guardError booking.GuardError
	if errors.As(err, &guardError) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":         "guard_violation",
				"precondition": guardError.Precondition,
				"message":      guardError.Error(),
			},
		})
		return
	}
	var raceError booking.RaceError
	if errors.As(err, &raceError) {
		ctx.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":           "stale_state",
				"current_status": raceError.CurrentStatus.String(),
				"message":        raceError.Error(),
			},
		})
		return
	}
	switch {
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, settlement.ErrNotFound),
		errors.Is(err, drivermetrics.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, settlement.ErrDuplicate),
		errors.Is(err, settlement.ErrRefundNotReviewable),
		errors.Is(err, booking.ErrStaleState),
		errors.Is(err, settlement.ErrStaleState):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, booking.ErrInvalidBookingID),
		errors.Is(err, booking.ErrInvalidCustomerID),
		errors.Is(err, booking.ErrInvalidDriverID),
		errors.Is(err, booking.ErrInvalidBookingType),
		errors.Is(err, booking.ErrInvalidBookingStatus),
		errors.Is(err, booking.ErrInvalidPaymentStatus),
		errors.Is(err, booking.ErrInvalidRideType),
		errors.Is(err, booking.ErrInvalidAmountCents),
		errors.Is(err, settlement.ErrInvalidPercentage),
		errors.Is(err, settlement.ErrRemarksRequired):
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
	default:
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func queryInt(ctx *gin.Context, name string) int {
	raw := ctx.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func transitionResponseFrom(result booking.TransitionResult) gin.H {
	response := gin.H{
		"booking":  result.Booking,
		"warnings": result.Warnings,
	}
	if result.Settlement != nil {
		response["settlement"] = result.Settlement
	}
	if result.Reversal != nil {
		response["reversal"] = result.Reversal
	}
	if result.DriverSuspended {
		response["driver_suspended"] = true
	}
	return response
}

type createBookingRequest struct {
	Type             string    `json:"type"`
	CustomerID       string    `json:"customer_id"`
	CustomerName     string    `json:"customer_name"`
	PaymentStatus    string    `json:"payment_status"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	PackageID        string    `json:"package_id"`
	PackageName      string    `json:"package_name"`
	PackageCreatorID string    `json:"package_creator_id"`
	BookingDate      time.Time `json:"booking_date"`
	PickupTime       string    `json:"pickup_time"`
	PickupAddress    string    `json:"pickup_address"`
	DropoffAddress   string    `json:"dropoff_address"`
	PickupLatitude   *float64  `json:"pickup_latitude"`
	PickupLongitude  *float64  `json:"pickup_longitude"`
	PassengerCount   int       `json:"passenger_count"`
	RideType         string    `json:"ride_type"`
}

type driverActionRequest struct {
	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name"`
	Reason     string `json:"reason"`
}

type customerActionRequest struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
}

type completeRequest struct {
	DriverID          string `json:"driver_id"`
	VerificationPhoto string `json:"verification_photo"`
}

type rebookRequest struct {
	CustomerID string    `json:"customer_id"`
	NewDate    time.Time `json:"new_date"`
}

type driverLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createRefundRequest struct {
	BookingID   string `json:"booking_id"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

type reviewRefundRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Remarks    string `json:"remarks"`
}

type updatePercentageRequest struct {
	Percent float64 `json:"percent"`
}
