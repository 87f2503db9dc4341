package services

import (
	"testing"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/baharkarakas/evtrade-backend/internal/payment/momo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMomo = momo.Config{PartnerCode: "MOMOTEST", AccessKey: "access", SecretKey: "secret"}

func (f *fixture) reconciler() *ReconciliationService {
	return NewReconciliationService(f.core, testMomo)
}

func signedIPN(orderID string, amount int64, resultCode int, transID int64) momo.IPN {
	p := momo.IPN{
		PartnerCode:  testMomo.PartnerCode,
		OrderID:      orderID,
		RequestID:    "req-" + orderID,
		Amount:       amount,
		OrderInfo:    "payment",
		OrderType:    "momo_wallet",
		TransID:      transID,
		ResultCode:   resultCode,
		Message:      "ok",
		PayType:      "qr",
		ResponseTime: 1_700_000_000_000,
	}
	p.Signature = momo.SignIPN(testMomo, p)
	return p
}

func TestHandleIPN_DuplicateDoesNotDoubleCredit(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)
	ref := f.battery("bat", "seller", 700_000)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	id := res.Transaction.ID

	ipn := signedIPN(id, 700_000, 0, 4242)
	out, err := f.reconciler().HandleIPN(f.ctx, ipn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	tx := f.tx(id)
	assert.Equal(t, models.TxnPaid, tx.Status)
	require.NotNil(t, tx.GatewayTransID)
	assert.Equal(t, "4242", *tx.GatewayTransID)
	assert.Equal(t, int64(700_000), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(0), f.wallet("buyer").AvailableBalance)
	entries := f.ledgerLen("buyer")

	out, err = f.reconciler().HandleIPN(f.ctx, ipn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(700_000), f.wallet("seller").LockedBalance)
	assert.Equal(t, int64(0), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, entries, f.ledgerLen("buyer"))
	assert.Equal(t, 1, f.tasks.contracts(id))
}

func TestHandleIPN_BadSignature(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)
	ref := f.battery("bat", "seller", 700_000)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)

	ipn := signedIPN(res.Transaction.ID, 700_000, 0, 1)
	ipn.Amount = 1
	out, err := f.reconciler().HandleIPN(f.ctx, ipn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBadSignature, out)
	assert.Equal(t, models.TxnPending, f.tx(res.Transaction.ID).Status)
	assert.Equal(t, int64(0), f.wallet("buyer").AvailableBalance)
}

func TestHandleCallback_Transaction(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)
	ref := f.battery("bat", "seller", 500)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	id := res.Transaction.ID
	rec := f.reconciler()

	out, err := rec.HandleCallback(f.ctx, Callback{OrderID: id, Amount: 500, Success: false, TransID: "1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, models.TxnPending, f.tx(id).Status)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: id, Amount: 499, Success: true, TransID: "2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, out)
	assert.Equal(t, models.TxnPending, f.tx(id).Status)
	assert.Equal(t, int64(499), f.wallet("buyer").AvailableBalance)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: "no-such-order", Amount: 500, Success: true, TransID: "3"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, out)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: id, Amount: 500, Success: true, TransID: "4"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, models.TxnPaid, f.tx(id).Status)
	assert.Equal(t, int64(499), f.wallet("buyer").AvailableBalance)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: id, Amount: 499, Success: true, TransID: "2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(499), f.wallet("buyer").AvailableBalance)
}

func TestHandleCallback_ListingGoneCreditsWallet(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("first", 0)
	f.user("second", 0)
	ref := f.battery("bat", "seller", 300)
	a, err := f.checkout().Checkout(f.ctx, "first", ref, models.PayMomo)
	require.NoError(t, err)
	b, err := f.checkout().Checkout(f.ctx, "second", ref, models.PayMomo)
	require.NoError(t, err)
	rec := f.reconciler()

	out, err := rec.HandleCallback(f.ctx, Callback{OrderID: a.Transaction.ID, Amount: 300, Success: true, TransID: "10"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	cb := Callback{OrderID: b.Transaction.ID, Amount: 300, Success: true, TransID: "11"}
	out, err = rec.HandleCallback(f.ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, out)
	assert.Equal(t, int64(300), f.wallet("second").AvailableBalance)
	assert.Equal(t, models.TxnPending, f.tx(b.Transaction.ID).Status)

	out, err = rec.HandleCallback(f.ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(300), f.wallet("second").AvailableBalance)
}

func TestHandleCallback_VehicleRemainder(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 10_000_000)
	ref := f.vehicle("car", "seller", 100_000_000)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(t, err)
	id := res.Transaction.ID
	_, err = f.lifecycle().ScheduleAppointment(f.ctx, id, "seller", f.clock.Add(time.Hour), "lot 4")
	require.NoError(t, err)

	pr, err := f.checkout().PayRemainderForVehicle(f.ctx, id, "buyer", models.PayMomo)
	require.NoError(t, err)
	assert.NotEmpty(t, pr.PayURL)
	req := f.gw.last()
	assert.Equal(t, id+RemainderSuffix, OrderRef(req.OrderID))
	assert.Equal(t, int64(90_000_000), req.Amount)

	ipn := signedIPN(req.OrderID, 90_000_000, 0, 777)
	out, err := f.reconciler().HandleIPN(f.ctx, ipn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, models.TxnCompleted, f.tx(id).Status)
	assert.Equal(t, int64(95_000_000), f.wallet("seller").AvailableBalance)
	assert.Equal(t, int64(5_000_000), f.wallet(sysID).AvailableBalance)

	out, err = f.reconciler().HandleIPN(f.ctx, ipn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(95_000_000), f.wallet("seller").AvailableBalance)
}

func TestHandleCallback_TopUp(t *testing.T) {
	f := newFixture(t)
	f.user("u", 0)
	wallets := NewWalletService(f.core, f.gw)
	rec := f.reconciler()

	top, err := wallets.RequestTopUp(f.ctx, "u", 50_000)
	require.NoError(t, err)
	assert.Equal(t, models.FinTxPending, top.Deposit.Status)
	assert.Equal(t, top.Deposit.ID, f.gw.last().OrderID)
	assert.Equal(t, int64(0), f.wallet("u").AvailableBalance)

	out, err := rec.HandleCallback(f.ctx, Callback{OrderID: top.Deposit.ID, Amount: 40_000, Success: true, TransID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out)
	assert.Equal(t, int64(0), f.wallet("u").AvailableBalance)

	cb := Callback{OrderID: top.Deposit.ID, Amount: 50_000, Success: true, TransID: "t2"}
	out, err = rec.HandleCallback(f.ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, int64(50_000), f.wallet("u").AvailableBalance)

	out, err = rec.HandleCallback(f.ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(50_000), f.wallet("u").AvailableBalance)

	failed, err := wallets.RequestTopUp(f.ctx, "u", 20_000)
	require.NoError(t, err)
	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: failed.Deposit.ID, Amount: 20_000, Success: false, TransID: "t3"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out)
	ft, err := f.st.Repos().Ledger.GetByID(f.ctx, failed.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FinTxCancelled, ft.Status)
	assert.Equal(t, int64(50_000), f.wallet("u").AvailableBalance)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: failed.Deposit.ID, Amount: 20_000, Success: true, TransID: "t4"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(50_000), f.wallet("u").AvailableBalance)
}

func TestHandleCallback_CapturedAfterTransactionMovedOn(t *testing.T) {
	tests := []struct {
		name   string
		before func(f *fixture, txID string)
		status models.TransactionStatus
	}{
		{
			name: "swept unpaid",
			before: func(f *fixture, txID string) {
				f.advance(25 * time.Hour)
				rep, err := f.lifecycle().SweepExpired(f.ctx)
				require.NoError(f.t, err)
				require.Equal(f.t, 1, rep.Cancelled)
			},
			status: models.TxnCancelled,
		},
		{
			name: "paid from wallet meanwhile",
			before: func(f *fixture, txID string) {
				f.fund("buyer", 500)
				_, err := f.checkout().PayWithWallet(f.ctx, txID, "buyer")
				require.NoError(f.t, err)
			},
			status: models.TxnPaid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.user("seller", 0)
			f.user("buyer", 0)
			ref := f.battery("bat", "seller", 500)
			res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
			require.NoError(t, err)
			id := res.Transaction.ID
			orderID := f.gw.last().OrderID

			tt.before(f, id)
			total := f.st.SumBalances()
			buyer := f.wallet("buyer").AvailableBalance

			ipn := signedIPN(orderID, 500, 0, 77)
			out, err := f.reconciler().HandleIPN(f.ctx, ipn)
			require.NoError(t, err)
			assert.Equal(t, OutcomeCredited, out)
			assert.Equal(t, tt.status, f.tx(id).Status)
			assert.Equal(t, buyer+500, f.wallet("buyer").AvailableBalance)
			assert.Equal(t, total+500, f.st.SumBalances(), "the captured amount lands in exactly one wallet")

			out, err = f.reconciler().HandleIPN(f.ctx, ipn)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, out)
			assert.Equal(t, total+500, f.st.SumBalances())

			var credited int
			for _, l := range f.st.AuditLogs() {
				if l.Action == "gateway_payment_credited" && l.EntityID != nil && *l.EntityID == id {
					credited++
				}
			}
			assert.Equal(t, 1, credited)
		})
	}
}

func TestHandleCallback_RemainderAfterWalletPayment(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 100_000_000)
	ref := f.vehicle("car", "seller", 100_000_000)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayWallet)
	require.NoError(t, err)
	id := res.Transaction.ID
	_, err = f.lifecycle().ScheduleAppointment(f.ctx, id, "seller", f.clock.Add(time.Hour), "lot 4")
	require.NoError(t, err)

	_, err = f.checkout().PayRemainderForVehicle(f.ctx, id, "buyer", models.PayMomo)
	require.NoError(t, err)
	orderID := f.gw.last().OrderID
	_, err = f.checkout().PayRemainderForVehicle(f.ctx, id, "buyer", models.PayWallet)
	require.NoError(t, err)
	require.Equal(t, models.TxnCompleted, f.tx(id).Status)
	total := f.st.SumBalances()

	out, err := f.reconciler().HandleIPN(f.ctx, signedIPN(orderID, 90_000_000, 0, 901))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, out)
	assert.Equal(t, int64(90_000_000), f.wallet("buyer").AvailableBalance)
	assert.Equal(t, total+90_000_000, f.st.SumBalances())
}

func TestHandleCallback_AttemptOrderIDs(t *testing.T) {
	f := newFixture(t)
	f.user("seller", 0)
	f.user("buyer", 0)
	ref := f.battery("bat", "seller", 500)
	res, err := f.checkout().Checkout(f.ctx, "buyer", ref, models.PayMomo)
	require.NoError(t, err)
	first := f.gw.last().OrderID
	_, err = f.checkout().PayWithGateway(f.ctx, res.Transaction.ID, "buyer")
	require.NoError(t, err)
	second := f.gw.last().OrderID
	require.NotEqual(t, first, second)

	rec := f.reconciler()
	out, err := rec.HandleCallback(f.ctx, Callback{OrderID: first, Amount: 500, Success: false, TransID: "1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: second, Amount: 500, Success: true, TransID: "2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, models.TxnPaid, f.tx(res.Transaction.ID).Status)

	out, err = rec.HandleCallback(f.ctx, Callback{OrderID: res.Transaction.ID + AttemptSep + "zz", Amount: 500, Success: true, TransID: "2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, int64(500), f.wallet("seller").LockedBalance)
}
