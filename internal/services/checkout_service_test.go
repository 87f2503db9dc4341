package services

import (
	"errors"
	"testing"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_BatteryWithWallet(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000_000)
	ref := f.battery("bat-1", "seller", 500_000)
	total := f.st.SumBalances()

	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(t, err)
	tx := res.Transaction
	assert.Empty(t, res.PayURL)
	assert.Equal(t, models.TxnPaid, tx.Status)
	assert.Equal(t, int64(500_000), tx.PaidAmount)
	assert.Equal(t, models.ListingSold, f.listingStatus(ref))
	assert.Equal(t, int64(500_000), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, int64(500_000), f.wallet("seller").LockedBalance)
	assert.Equal(t, total, f.st.SumBalances())
	assert.Equal(t, 1, f.tasks.contracts(tx.ID))

	shipped, err := f.lifecycle().Ship(f.ctx, tx.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.TxnShipped, shipped.Status)
	require.NotNil(t, shipped.ConfirmationDeadline)
	assert.Equal(t, f.clock.Add(24*time.Hour), *shipped.ConfirmationDeadline)

	done, err := f.lifecycle().ConfirmReceipt(f.ctx, tx.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, done.Status)
	seller := f.wallet("seller")
	sys := f.wallet(sysID)
	assert.Equal(t, int64(475_000), seller.AvailableBalance)
	assert.Equal(t, int64(0), seller.LockedBalance)
	assert.Equal(t, int64(25_000), sys.AvailableBalance)
	assert.Equal(t, done.FinalPrice, seller.AvailableBalance+sys.AvailableBalance)
	assert.Equal(t, total, f.st.SumBalances())
}

func TestCheckout_VehicleDepositAndRemainder(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 100_000_000)
	ref := f.vehicle("car-1", "seller", 100_000_000)
	total := f.st.SumBalances()

	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(t, err)
	tx := res.Transaction
	assert.Equal(t, models.TxnDepositPaid, tx.Status)
	assert.Equal(t, int64(10_000_000), tx.PaidAmount)
	assert.Equal(t, int64(10_000_000), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(90_000_000), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, models.ListingReserved, f.listingStatus(ref))
	require.NotNil(t, tx.AppointmentDeadline)
	assert.Equal(t, f.clock.Add(7*24*time.Hour), *tx.AppointmentDeadline)

	_, err = f.checkout().PayRemainderForVehicle(f.ctx, tx.ID, "buyer", models.PayWallet)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "remainder before the appointment is scheduled")

	appt, err := f.lifecycle().ScheduleAppointment(f.ctx, tx.ID, "seller", f.clock.Add(48*time.Hour), "Hanoi showroom")
	require.NoError(t, err)
	require.NotNil(t, appt.ScheduledAt)
	assert.Equal(t, models.TxnAppointmentScheduled, f.tx(tx.ID).Status)

	out, err := f.checkout().PayRemainderForVehicle(f.ctx, tx.ID, "buyer", models.PayWallet)
	require.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, out.Transaction.Status)
	assert.Equal(t, int64(100_000_000), out.Transaction.PaidAmount)
	assert.Equal(t, models.ListingSold, f.listingStatus(ref))

	// commission is 5% of the full price, not of the 90% remainder
	assert.Equal(t, int64(95_000_000), f.wallet("seller").AvailableBalance)
	assert.Equal(t, int64(0), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(5_000_000), f.wallet(sysID).AvailableBalance)
	assert.Equal(t, int64(0), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, total, f.st.SumBalances())

	_, err = f.checkout().PayRemainderForVehicle(f.ctx, tx.ID, "buyer", models.PayWallet)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCheckout_Rejections(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 100)
	own := f.battery("own", "buyer", 50)
	sold := f.listing(models.Listing{Ref: models.ListingRef{Kind: models.KindBattery, ID: "sold"}, SellerID: "seller", Price: 50, Status: models.ListingSold})
	auction := f.auction("auc", "seller", 50, 10, 0)
	pricey := f.battery("pricey", "seller", 1_000)

	tests := []struct {
		name   string
		ref    models.ListingRef
		method models.PaymentMethod
		kind   apperr.Kind
	}{
		{"own listing", own, models.PayWallet, apperr.KindBadRequest},
		{"not available", sold, models.PayWallet, apperr.KindConflict},
		{"auction", auction, models.PayWallet, apperr.KindBadRequest},
		{"missing", models.ListingRef{Kind: models.KindBattery, ID: "nope"}, models.PayWallet, apperr.KindNotFound},
		{"bad method", pricey, models.PaymentMethod("CASH"), apperr.KindBadRequest},
		{"insufficient balance", pricey, models.PayWallet, apperr.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkout().Checkout(f.ctx, "buyer", tt.ref, tt.method)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
	assert.Equal(t, int64(100), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, models.ListingAvailable, f.listingStatus(pricey))
}

func TestPayWithWallet_NeverDebitsTwice(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000)
	ref := f.battery("bat", "seller", 400)

	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	id := res.Transaction.ID

	_, err = f.checkout().PayWithWallet(f.ctx, id, "someone-else")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.checkout().PayWithWallet(f.ctx, id, "buyer")
	require.NoError(t, err)
	_, err = f.checkout().PayWithWallet(f.ctx, id, "buyer")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	assert.Equal(t, int64(600), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, int64(400), f.wallet("seller").LockedBalance)
}

func TestCheckout_Gateway(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)
	ref := f.vehicle("car", "seller", 300_000_000)

	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	assert.Equal(t, models.TxnPending, res.Transaction.Status)
	req := f.gw.last()
	assert.Equal(t, "https://pay.test/"+req.OrderID, res.PayURL)
	assert.Equal(t, res.Transaction.ID, OrderRef(req.OrderID))
	assert.Equal(t, int64(30_000_000), req.Amount)
	assert.Equal(t, models.ListingAvailable, f.listingStatus(ref))

	retry, err := f.checkout().PayWithGateway(f.ctx, res.Transaction.ID, "buyer")
	require.NoError(t, err)
	again := f.gw.last()
	assert.NotEqual(t, req.OrderID, again.OrderID, "every attempt needs its own gateway order id")
	assert.Equal(t, res.Transaction.ID, OrderRef(again.OrderID))
	assert.Equal(t, "https://pay.test/"+again.OrderID, retry.PayURL)

	f.gw.err = errors.New("gateway down")
	_, err = f.checkout().PayWithGateway(f.ctx, res.Transaction.ID, "buyer")
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestCheckoutCart(t *testing.T) {
	f := newFixture(t)
	f.user("s1", 0)
	f.user("s2", 0)
	f.user("buyer", 1_000)
	b1 := f.battery("b1", "s1", 100)
	b2 := f.battery("b2", "s1", 200)
	b3 := f.battery("b3", "s2", 300)
	car := f.vehicle("car", "s2", 900)
	total := f.st.SumBalances()

	for _, ref := range []models.ListingRef{b1, b2, b3} {
		_, err := f.listings().AddToCart(f.ctx, "buyer", ref)
		require.NoError(t, err)
	}
	_, err := f.listings().AddToCart(f.ctx, "buyer", car)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "vehicles are checked out alone")

	res, err := f.checkout().CheckoutCart(f.ctx, "buyer", models.PayWallet)
	require.NoError(t, err)
	parent := res.Transaction
	assert.True(t, parent.IsParent())
	assert.Equal(t, models.TxnPaid, parent.Status)
	assert.Equal(t, int64(600), parent.FinalPrice)

	children, err := f.st.Repos().Transactions.ListChildren(f.ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	subtotals := map[string]int64{}
	for _, ch := range children {
		assert.Equal(t, models.TxnPaid, ch.Status)
		subtotals[ch.SellerID] = ch.FinalPrice
		assert.Equal(t, 1, f.tasks.contracts(ch.ID))
	}
	assert.Equal(t, map[string]int64{"s1": 300, "s2": 300}, subtotals)
	for _, ref := range []models.ListingRef{b1, b2, b3} {
		assert.Equal(t, models.ListingSold, f.listingStatus(ref))
	}
	assert.Equal(t, int64(400), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, int64(300), f.wallet("s1").LockedBalance)
	assert.Equal(t, int64(300), f.wallet("s2").LockedBalance)
	cart, err := f.listings().Cart(f.ctx, "buyer")
	require.NoError(t, err)
	assert.Empty(t, cart)

	_, err = f.checkout().PayWithWallet(f.ctx, children[0].ID, "buyer")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.lifecycle().Complete(f.ctx, parent.ID, "admin")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.lifecycle().Complete(f.ctx, children[0].ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.TxnPaid, f.tx(parent.ID).Status)
	_, err = f.lifecycle().Complete(f.ctx, children[1].ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.TxnCompleted, f.tx(parent.ID).Status)

	assert.Equal(t, int64(285), f.wallet("s1").AvailableBalance)
	assert.Equal(t, int64(285), f.wallet("s2").AvailableBalance)
	assert.Equal(t, int64(30), f.wallet(sysID).AvailableBalance)
	assert.Equal(t, total, f.st.SumBalances())
}

func TestCompleteTransaction_StateMachineSafety(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 1_000)
	ref := f.battery("bat", "seller", 400)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	id := res.Transaction.ID

	before := f.tx(id)
	audits := len(f.st.AuditLogs())
	_, err = f.lifecycle().Complete(f.ctx, id, "admin")
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Equal(t, before, f.tx(id))
	assert.Len(t, f.st.AuditLogs(), audits)
	assert.Equal(t, int64(0), f.wallet(sysID).AvailableBalance)
	assert.Equal(t, int64(1_000), f.wallet("buyer").AvailableBalance)
}
