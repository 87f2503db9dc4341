package services

import (
	"strings"
	"testing"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) paidBattery(id string, price int64) models.Transaction {
	f.t.Helper()
	ref := f.battery(id, "seller", price)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(f.t, err)
	return res.Transaction
}

func TestDispute(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000)
	svc := NewLifecycleService(f.core, storage.NewLocal(t.TempDir(), "http://files.test"), 10)
	tx := f.paidBattery("bat", 400)

	_, err := svc.Dispute(f.ctx, tx.ID, "buyer", "broken", nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "only shipped transactions can be disputed")

	_, err = svc.Ship(f.ctx, tx.ID, "seller")
	require.NoError(t, err)

	_, err = svc.Dispute(f.ctx, tx.ID, "seller", "broken", nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = svc.Dispute(f.ctx, tx.ID, "buyer", "  ", nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	got, err := svc.Dispute(f.ctx, tx.ID, "buyer", "cells swollen", []Evidence{
		{Name: "photo.jpg", Body: strings.NewReader("jpeg bytes")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxnDisputed, got.Status)
	require.NotNil(t, got.DisputeReason)
	assert.Equal(t, "cells swollen", *got.DisputeReason)
	require.Len(t, got.DisputeEvidence, 1)
	assert.True(t, strings.HasPrefix(got.DisputeEvidence[0], "http://files.test/files/disputes/"+tx.ID+"/"))
	assert.Equal(t, int64(400), f.wallet("seller").LockedBalance, "escrow stays locked")

	_, err = svc.ConfirmReceipt(f.ctx, tx.ID, "buyer")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestDispute_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000)
	tx := f.paidBattery("bat", 400)
	_, err := f.lifecycle().Ship(f.ctx, tx.ID, "seller")
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	_, err = f.lifecycle().Dispute(f.ctx, tx.ID, "buyer", "late", nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	assert.Equal(t, models.TxnShipped, f.tx(tx.ID).Status)
}

func TestRejectVehiclePurchase(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 20_000_000)
	ref := f.vehicle("car", "seller", 100_000_000)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(t, err)
	id := res.Transaction.ID

	_, err = f.lifecycle().RejectVehiclePurchase(f.ctx, id, "buyer", "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "nothing to reject before the viewing")

	_, err = f.lifecycle().ScheduleAppointment(f.ctx, id, "buyer", f.clock.Add(time.Hour), "lot")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.lifecycle().ScheduleAppointment(f.ctx, id, "seller", f.clock.Add(-time.Hour), "lot")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	_, err = f.lifecycle().ScheduleAppointment(f.ctx, id, "seller", f.clock.Add(time.Hour), "lot")
	require.NoError(t, err)

	got, err := f.lifecycle().RejectVehiclePurchase(f.ctx, id, "buyer", "battery health too low")
	require.NoError(t, err)
	assert.Equal(t, models.TxnRejected, got.Status)
	assert.Equal(t, int64(20_000_000), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, int64(0), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(0), f.wallet("seller").AvailableBalance)
	assert.Equal(t, models.ListingAvailable, f.listingStatus(ref))
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 10_000)
	paid := f.paidBattery("paid", 100)
	ref := f.battery("pending", "seller", 100)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	pending := res.Transaction
	svc := f.lifecycle()

	tests := []struct {
		name string
		run  func() error
		kind apperr.Kind
	}{
		{"ship by buyer", func() error { _, err := svc.Ship(f.ctx, paid.ID, "buyer"); return err }, apperr.KindForbidden},
		{"ship unpaid", func() error { _, err := svc.Ship(f.ctx, pending.ID, "seller"); return err }, apperr.KindBadRequest},
		{"confirm unshipped", func() error { _, err := svc.ConfirmReceipt(f.ctx, paid.ID, "buyer"); return err }, apperr.KindBadRequest},
		{"reject battery", func() error { _, err := svc.RejectVehiclePurchase(f.ctx, paid.ID, "buyer", ""); return err }, apperr.KindBadRequest},
		{"schedule battery", func() error {
			_, err := svc.ScheduleAppointment(f.ctx, paid.ID, "seller", f.clock.Add(time.Hour), "x")
			return err
		}, apperr.KindBadRequest},
		{"missing", func() error { _, err := svc.Ship(f.ctx, "nope", "seller"); return err }, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
	assert.Equal(t, models.TxnPaid, f.tx(paid.ID).Status)
	assert.Equal(t, models.TxnPending, f.tx(pending.ID).Status)
}

func TestGetAndListMine(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000)
	f.user("other", 0)
	tx := f.paidBattery("bat", 100)
	svc := f.lifecycle()

	_, err := svc.Get(f.ctx, tx.ID, "buyer", false)
	assert.NoError(t, err)
	_, err = svc.Get(f.ctx, tx.ID, "seller", false)
	assert.NoError(t, err)
	_, err = svc.Get(f.ctx, tx.ID, "other", false)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = svc.Get(f.ctx, tx.ID, "other", true)
	assert.NoError(t, err)

	mine, err := svc.ListMine(f.ctx, "buyer", 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 100_000_000)
	f.user("bidder", 1_000)
	total := f.st.SumBalances()

	unpaidRef := f.battery("unpaid", "seller", 100)
	unpaid, err := f.checkout().Checkout(f.ctx, "buyer", unpaidRef, models.PayMomo)
	require.NoError(t, err)

	carRef := f.vehicle("car", "seller", 50_000_000)
	car, err := f.checkout().Checkout(f.ctx, "buyer", carRef, models.PayWallet)
	require.NoError(t, err)

	shipped := f.paidBattery("shipped", 1_000)
	_, err = f.lifecycle().Ship(f.ctx, shipped.ID, "seller")
	require.NoError(t, err)

	auctionRef := f.auction("auc", "seller", 500, 50, 100)
	_, err = f.auctions().PlaceBid(f.ctx, auctionRef, "bidder", 600)
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	rep, err := f.lifecycle().SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Cancelled: 1, Refunded: 1, Completed: 1, AuctionsClosed: 1}, rep)

	assert.Equal(t, models.TxnCancelled, f.tx(unpaid.Transaction.ID).Status)
	assert.Equal(t, models.ListingAvailable, f.listingStatus(unpaidRef))

	assert.Equal(t, models.TxnCancelled, f.tx(car.Transaction.ID).Status)
	assert.Equal(t, models.ListingAvailable, f.listingStatus(carRef))

	assert.Equal(t, models.TxnCompleted, f.tx(shipped.ID).Status)
	assert.Equal(t, int64(950), f.wallet("seller").AvailableBalance)
	assert.Equal(t, int64(0), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(100_000_000-1_000), f.wallet("buyer").AvailableBalance)

	assert.Equal(t, models.ListingReserved, f.listingStatus(auctionRef))
	assert.Equal(t, int64(100), f.wallet("bidder").LockedBalance)

	rep, err = f.lifecycle().SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep, "a second sweep finds nothing")

	// the auction winner never pays
	f.advance(25 * time.Hour)
	rep, err = f.lifecycle().SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Cancelled)
	assert.Equal(t, models.ListingDelisted, f.listingStatus(auctionRef))
	assert.Equal(t, int64(1_000), f.wallet("bidder").AvailableBalance)
	assert.Equal(t, int64(0), f.wallet("bidder").LockedBalance)

	assert.Equal(t, total, f.st.SumBalances())
}

func TestSweepExpired_CancelsCartWithParts(t *testing.T) {
	f := newFixture(t)
	f.user("s1", 0)
	f.user("s2", 0)
	f.user("buyer", 0)
	for _, ref := range []models.ListingRef{f.battery("a", "s1", 10), f.battery("b", "s2", 20)} {
		_, err := f.listings().AddToCart(f.ctx, "buyer", ref)
		require.NoError(t, err)
	}
	res, err := f.checkout().CheckoutCart(f.ctx, "buyer", models.PayMomo)
	require.NoError(t, err)
	assert.Equal(t, int64(30), f.gw.last().Amount)

	f.advance(48 * time.Hour)
	rep, err := f.lifecycle().SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Cancelled)
	assert.Equal(t, models.TxnCancelled, f.tx(res.Transaction.ID).Status)
	children, err := f.st.Repos().Transactions.ListChildren(f.ctx, res.Transaction.ID)
	require.NoError(t, err)
	for _, ch := range children {
		assert.Equal(t, models.TxnCancelled, ch.Status)
	}
}

func TestSweepExpired_FailuresDoNotBlockLaterDeadlines(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)

	// An auction win whose listing is missing cannot be cancelled.
	_, err := f.st.Repos().Transactions.Create(f.ctx, models.Transaction{
		ID:              "broken",
		BuyerID:         "buyer",
		SellerID:        "seller",
		Listing:         &models.ListingRef{Kind: models.KindVehicle, ID: "gone"},
		Type:            models.TxnAuction,
		Status:          models.TxnPending,
		FinalPrice:      100,
		AmountDue:       100,
		PaymentMethod:   models.PayMomo,
		PaymentDeadline: at(f.clock.Add(time.Hour)),
	})
	require.NoError(t, err)

	var ids []string
	for _, id := range []string{"b1", "b2"} {
		res, err := f.checkout().Checkout(f.ctx, "buyer", f.battery(id, "seller", 10), models.PayMomo)
		require.NoError(t, err)
		ids = append(ids, res.Transaction.ID)
	}

	f.advance(25 * time.Hour)
	expired, err := f.st.Repos().Transactions.ListExpired(f.ctx, f.clock, nil, 10)
	require.NoError(t, err)
	require.Len(t, expired, 3)
	assert.Equal(t, "broken", expired[0].ID, "earliest deadline first")

	sweeper := NewLifecycleService(f.core, nil, 1)
	rep, err := sweeper.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Cancelled: 2, Failed: 1}, rep)
	for _, id := range ids {
		assert.Equal(t, models.TxnCancelled, f.tx(id).Status)
	}
	assert.Equal(t, models.TxnPending, f.tx("broken").Status)

	rep, err = sweeper.SweepExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Failed: 1}, rep)
}
