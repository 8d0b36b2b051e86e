package settlement

import (
	"context"
	"errors"
	"testing"
)

func TestCreateRefundRequestRequiresReason(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	_, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "  ", "admin-1")
	if !errors.Is(err, ErrRemarksRequired) {
		t.Fatalf("expected ErrRemarksRequired, got %v", err)
	}
}

func TestCreateRefundRequestRejectsDuplicate(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	record := paidTour("bk-1", 1000)

	if _, err := service.CreateRefundRequest(context.Background(), record, "overcharged", "admin-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := service.CreateRefundRequest(context.Background(), record, "again", "admin-1")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateRefundRequestAmountFollowsPayment(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 75_000), "service issue", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if refund.AmountCents != 75_000 || refund.Status != RefundPending {
		t.Fatalf("expected pending full-amount refund, got %+v", refund)
	}
	if refund.Reference == "" {
		t.Fatalf("expected a generated reference")
	}
}

func TestCreateRefundRequestLinksEarningAndDriver(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	record := paidTour("bk-1", 100_000)
	if err := service.EnsureEarning(context.Background(), record); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	earning, err := store.GetEarningByBooking(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("earning: %v", err)
	}

	refund, err := service.CreateRefundRequest(context.Background(), record, "service issue", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if refund.EarningID != earning.ID {
		t.Fatalf("expected refund linked to earning %s, got %q", earning.ID, refund.EarningID)
	}
	if refund.DriverID != "drv-1" {
		t.Fatalf("expected refund to carry the driver, got %q", refund.DriverID)
	}
}

func TestApproveRefundFromPending(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	approved, err := service.ApproveRefund(context.Background(), refund.ID, "admin-2", "looks right")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != RefundApproved || approved.ReviewedBy != "admin-2" {
		t.Fatalf("unexpected review result: %+v", approved)
	}
}

func TestRejectRefundRequiresRemarks(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := service.RejectRefund(context.Background(), refund.ID, "admin-2", ""); !errors.Is(err, ErrRemarksRequired) {
		t.Fatalf("expected ErrRemarksRequired, got %v", err)
	}
	rejected, err := service.RejectRefund(context.Background(), refund.ID, "admin-2", "not eligible")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != RefundRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
}

func TestApproveRejectedRefundFails(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.RejectRefund(context.Background(), refund.ID, "admin-2", "not eligible"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := service.ApproveRefund(context.Background(), refund.ID, "admin-3", ""); !errors.Is(err, ErrRefundNotReviewable) {
		t.Fatalf("expected ErrRefundNotReviewable, got %v", err)
	}
}

func TestVoidRefundFromApproved(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.ApproveRefund(context.Background(), refund.ID, "admin-2", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	voided, err := service.VoidRefund(context.Background(), refund.ID, "admin-3", "processed externally")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != RefundVoided {
		t.Fatalf("expected voided, got %s", voided.Status)
	}
}

func TestVoidRefundIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.VoidRefund(context.Background(), refund.ID, "admin-2", "duplicate entry"); err != nil {
		t.Fatalf("first void: %v", err)
	}

	again, err := service.VoidRefund(context.Background(), refund.ID, "admin-2", "duplicate entry")
	if err != nil {
		t.Fatalf("second void: %v", err)
	}
	if again.Status != RefundVoided {
		t.Fatalf("expected voided, got %s", again.Status)
	}
}

func TestVoidRejectedRefundFails(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	refund, err := service.CreateRefundRequest(context.Background(), paidTour("bk-1", 1000), "reason", "admin-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.RejectRefund(context.Background(), refund.ID, "admin-2", "not eligible"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := service.VoidRefund(context.Background(), refund.ID, "admin-3", "cleanup"); !errors.Is(err, ErrRefundNotReviewable) {
		t.Fatalf("expected ErrRefundNotReviewable, got %v", err)
	}
}

func TestUpdateOrganizationPercentageValidatesAndStores(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	if _, err := service.UpdateOrganizationPercentage(context.Background(), 120); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected ErrInvalidPercentage, got %v", err)
	}
	percentage, err := service.UpdateOrganizationPercentage(context.Background(), 25)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if percentage != 2500 {
		t.Fatalf("expected 2500 bp, got %d", percentage)
	}
	live, err := service.OrganizationPercentage(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if live != 2500 {
		t.Fatalf("expected stored 2500 bp, got %d", live)
	}
}
