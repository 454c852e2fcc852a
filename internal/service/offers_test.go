package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
)

func TestMakeOffer_MovesOpenToNegotiating(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")

	o := f.offer(t, f.alice, r.ID, "4.50")
	if o.Status != model.OfferPending || o.UserID != f.alice.ID || o.IsCounterOffer() {
		t.Fatalf("unexpected offer: %+v", o)
	}
	got, _ := f.m.Request(r.ID)
	if got.Status != model.RequestNegotiating {
		t.Fatalf("request status = %s", got.Status)
	}
	f.offer(t, f.bob, r.ID, "5")
	if n := len(f.m.OffersForRequest(r.ID)); n != 2 {
		t.Fatalf("want 2 offers, got %d", n)
	}
}

func TestMakeOffer_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")

	if _, err := f.m.MakeOffer(as(f.owner), r.ID, dec("5")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("self offer: want ErrForbidden, got %v", err)
	}
	for _, amount := range []string{"0", "-1", "0.50", "101", "4.999"} {
		if _, err := f.m.MakeOffer(as(f.alice), r.ID, dec(amount)); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("amount %s: want ErrValidation, got %v", amount, err)
		}
	}
	if _, err := f.m.MakeOffer(as(f.alice), uuid.Must(uuid.NewV4()), dec("5")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown request: want ErrNotFound, got %v", err)
	}

	if _, err := f.m.CancelRequest(as(f.owner), r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.m.MakeOffer(as(f.alice), r.ID, dec("5")); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("cancelled: want ErrInvalidState, got %v", err)
	}
}

func TestMakeOffer_ExpiredRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")
	o := f.offer(t, f.alice, r.ID, "5")

	f.clock.Advance(2*time.Hour + time.Second)
	if _, err := f.m.MakeOffer(as(f.bob), r.ID, dec("5")); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("offer on expired: want ErrInvalidState, got %v", err)
	}
	if _, err := f.m.CounterOffer(as(f.owner), o.ID, dec("4")); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("counter on expired: want ErrInvalidState, got %v", err)
	}
	if _, err := f.m.AcceptOffer(as(f.owner), o.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("accept on expired: want ErrInvalidState, got %v", err)
	}
	got, _ := f.m.Request(r.ID)
	if got.EffectiveStatus(f.clock.Now()) != model.RequestExpired {
		t.Fatalf("effective status = %s", got.EffectiveStatus(f.clock.Now()))
	}
}

func TestAcceptOffer_FeeScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "15")
	o := f.offer(t, f.alice, r.ID, "15")
	other := f.offer(t, f.bob, r.ID, "14")

	tx, err := f.m.AcceptOffer(as(f.owner), o.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if !tx.ItemPrice.Equal(dec("15")) || !tx.PlatformFee.Equal(dec("1.50")) || !tx.TotalCharged.Equal(dec("16.50")) {
		t.Fatalf("breakdown = %s + %s = %s", tx.ItemPrice, tx.PlatformFee, tx.TotalCharged)
	}
	if tx.Status != model.TransactionPending || tx.RequesterID != f.owner.ID || tx.FulfillerID != f.alice.ID {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if tx.RequesterConfirmed || tx.FulfillerConfirmed {
		t.Fatalf("new transaction must be unconfirmed")
	}

	gotReq, _ := f.m.Request(r.ID)
	if gotReq.Status != model.RequestMatched || gotReq.FulfillerID == nil || *gotReq.FulfillerID != f.alice.ID || !gotReq.HasMatch() {
		t.Fatalf("request not matched: %+v", gotReq)
	}
	gotOffer, _ := f.m.Offer(o.ID)
	if gotOffer.Status != model.OfferAccepted {
		t.Fatalf("offer status = %s", gotOffer.Status)
	}
	if byReq, err := f.m.TransactionForRequest(r.ID); err != nil || byReq.ID != tx.ID {
		t.Fatalf("TransactionForRequest = %+v, %v", byReq, err)
	}
	if o2, _ := f.m.Offer(other.ID); o2.Status != model.OfferPending {
		t.Fatalf("other offers stay untouched, got %s", o2.Status)
	}

	if _, err := f.m.AcceptOffer(as(f.owner), other.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("second accept: want ErrInvalidState, got %v", err)
	}
	if n := len(f.m.MyTransactions(f.owner.ID)); n != 1 {
		t.Fatalf("want exactly one transaction, got %d", n)
	}
}

func TestAcceptOffer_FeeCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, tx := f.matched(t, "25")
	if !tx.PlatformFee.Equal(dec("2.00")) || !tx.TotalCharged.Equal(dec("27.00")) {
		t.Fatalf("capped breakdown = %s / %s", tx.PlatformFee, tx.TotalCharged)
	}
}

func TestAcceptOffer_Permissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")
	o := f.offer(t, f.alice, r.ID, "5")

	if _, err := f.m.AcceptOffer(as(f.alice), o.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("offerer accepting: want ErrForbidden, got %v", err)
	}
	if _, err := f.m.AcceptOffer(as(f.bob), o.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("stranger accepting: want ErrForbidden, got %v", err)
	}
	c, err := f.m.CounterOffer(as(f.owner), o.ID, dec("4"))
	if err != nil {
		t.Fatalf("CounterOffer: %v", err)
	}
	if _, err := f.m.AcceptOffer(as(f.owner), c.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("owner accepting own counter: want ErrForbidden, got %v", err)
	}
	if _, err := f.m.AcceptOffer(as(f.owner), o.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("accepting countered offer: want ErrInvalidState, got %v", err)
	}
}

func TestCounterOffer_Chain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "10")
	o := f.offer(t, f.alice, r.ID, "12")

	if _, err := f.m.CounterOffer(as(f.bob), o.ID, dec("11")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("stranger counter: want ErrForbidden, got %v", err)
	}
	if _, err := f.m.CounterOffer(as(f.alice), o.ID, dec("11")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("author countering own offer: want ErrForbidden, got %v", err)
	}

	c1, err := f.m.CounterOffer(as(f.owner), o.ID, dec("10.50"))
	if err != nil {
		t.Fatalf("owner counter: %v", err)
	}
	if c1.ParentOfferID == nil || *c1.ParentOfferID != o.ID || c1.UserID != f.owner.ID || !c1.IsPending() {
		t.Fatalf("unexpected counter: %+v", c1)
	}
	if got, _ := f.m.Offer(o.ID); got.Status != model.OfferCountered {
		t.Fatalf("parent status = %s", got.Status)
	}

	// The owner's counter is answered by alice, not by the owner or bob.
	if _, err := f.m.CounterOffer(as(f.owner), c1.ID, dec("10")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("owner countering own counter: want ErrForbidden, got %v", err)
	}
	if _, err := f.m.DeclineOffer(as(f.bob), c1.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("stranger decline: want ErrForbidden, got %v", err)
	}
	c2, err := f.m.CounterOffer(as(f.alice), c1.ID, dec("11"))
	if err != nil {
		t.Fatalf("alice counter back: %v", err)
	}
	if c2.UserID != f.alice.ID || *c2.ParentOfferID != c1.ID {
		t.Fatalf("unexpected second counter: %+v", c2)
	}

	tx, err := f.m.AcceptOffer(as(f.owner), c2.ID)
	if err != nil {
		t.Fatalf("accept counter: %v", err)
	}
	if !tx.ItemPrice.Equal(dec("11")) || tx.FulfillerID != f.alice.ID {
		t.Fatalf("transaction priced from wrong offer: %+v", tx)
	}

	offers := f.m.OffersForRequest(r.ID)
	if len(offers) != 3 || offers[0].ID != o.ID || offers[1].ID != c1.ID || offers[2].ID != c2.ID {
		t.Fatalf("offers not in creation order: %+v", offers)
	}
}

func TestDeclineOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")
	o := f.offer(t, f.alice, r.ID, "5")

	if _, err := f.m.DeclineOffer(as(f.alice), o.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("author decline: want ErrForbidden, got %v", err)
	}
	got, err := f.m.DeclineOffer(as(f.owner), o.ID)
	if err != nil || got.Status != model.OfferDeclined {
		t.Fatalf("DeclineOffer = %+v, %v", got, err)
	}
	if _, err := f.m.DeclineOffer(as(f.owner), o.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("decline twice: want ErrInvalidState, got %v", err)
	}
	if _, err := f.m.AcceptOffer(as(f.owner), o.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("accept declined: want ErrInvalidState, got %v", err)
	}
	if req, _ := f.m.Request(r.ID); req.Status != model.RequestNegotiating {
		t.Fatalf("decline must not change request status, got %s", req.Status)
	}
}

func TestAcceptOffer_ConcurrentCreatesOneTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.request(t, "5")

	const n = 16
	offers := make([]model.Offer, n)
	for i := range offers {
		by := f.alice
		if i%2 == 1 {
			by = f.bob
		}
		offers[i] = f.offer(t, by, r.ID, "5")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, o := range offers {
		wg.Add(1)
		go func(o model.Offer) {
			defer wg.Done()
			_, err := f.m.AcceptOffer(as(f.owner), o.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, errs.ErrInvalidState) {
				t.Errorf("loser: want ErrInvalidState, got %v", err)
			}
		}(o)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("want exactly one accepted offer, got %d", wins)
	}
	if n := len(f.m.MyTransactions(f.owner.ID)); n != 1 {
		t.Fatalf("want one transaction, got %d", n)
	}
	accepted := 0
	for _, o := range f.m.OffersForRequest(r.ID) {
		if o.Status == model.OfferAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("want one accepted offer, got %d", accepted)
	}
	if f.m.locks.size() != 0 {
		t.Fatalf("lock entries leaked: %d", f.m.locks.size())
	}
}
