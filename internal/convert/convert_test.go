package convert

import (
	"errors"
	"testing"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/model"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := ParseID("id", " 6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11 ")
	if err != nil || id.String() != "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11" {
		t.Fatalf("ParseID = %v, %v", id, err)
	}
	for _, bad := range []string{"", "nope", u.Nil.String()} {
		if _, err := ParseID("id", bad); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%q: want ErrValidation, got %v", bad, err)
		}
	}
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	d, err := ParseMoney("amount", "15.5")
	if err != nil || Money(d) != "15.50" {
		t.Fatalf("ParseMoney = %s, %v", d, err)
	}
	if _, err := ParseMoney("amount", "fifteen"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestToAPIRequest(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)
	fulfiller := mustUUID(t, "9b0c5f4e-8a43-4b8e-9b7a-0d7a4d1f2c33")
	r := model.Request{
		ID:              mustUUID(t, "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"),
		RequesterID:     mustUUID(t, "2b6f0cc9-0c1d-4f4e-8f6b-0a0e3d5f7a21"),
		ItemDescription: "flour",
		OfferPrice:      decimal.NewFromInt(5),
		Urgency:         model.UrgencyOneHour,
		RadiusMeters:    800,
		Status:          model.RequestMatched,
		FulfillerID:     &fulfiller,
		CreatedAt:       created,
		DurationHours:   2,
		ExpiresAt:       created.Add(2 * time.Hour),
	}
	got := ToAPIRequest(r, r.Status)
	if got.OfferPrice != "5.00" || got.Urgency != "1 hour" || got.Status != "matched" || got.FulfillerID != fulfiller.String() {
		t.Fatalf("unexpected wire request: %+v", got)
	}
	if ToAPIRequest(model.Request{}, model.RequestOpen).FulfillerID != "" {
		t.Fatalf("missing fulfiller must be empty")
	}
}

func TestFromAPICreateRequest(t *testing.T) {
	t.Parallel()

	in := api.CreateRequestRequest{
		ItemDescription: "eggs",
		OfferPrice:      "3.25",
		Urgency:         "ASAP",
		Location:        api.Location{Latitude: 1, Longitude: 2},
	}
	got, err := FromAPICreateRequest(in)
	if err != nil {
		t.Fatalf("FromAPICreateRequest: %v", err)
	}
	if !got.OfferPrice.Equal(decimal.RequireFromString("3.25")) || got.Urgency != model.UrgencyASAP || got.Location.Longitude != 2 {
		t.Fatalf("unexpected engine input: %+v", got)
	}
	in.OfferPrice = "cheap"
	if _, err := FromAPICreateRequest(in); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestToAPIUser_ContactFields(t *testing.T) {
	t.Parallel()

	done := true
	m := model.User{
		ID:                        mustUUID(t, "2b6f0cc9-0c1d-4f4e-8f6b-0a0e3d5f7a21"),
		DisplayName:               "ada lovelace",
		Email:                     "ada@state.edu",
		Phone:                     "555",
		PaymentAccountID:          "acct_1",
		PaymentOnboardingComplete: &done,
	}
	pub := ToAPIUser(m, false)
	if pub.Email != "" || pub.Phone != "" || pub.Initials != "AL" || !pub.CanReceivePayments || pub.SchoolID != "" {
		t.Fatalf("unexpected public user: %+v", pub)
	}
	if me := ToAPIUser(m, true); me.Email != "ada@state.edu" || me.Phone != "555" {
		t.Fatalf("contact fields dropped: %+v", me)
	}
}

func TestToAPIConversation(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)
	tx := model.Transaction{
		ID:           mustUUID(t, "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"),
		ItemPrice:    decimal.NewFromInt(15),
		PlatformFee:  decimal.RequireFromString("1.5"),
		TotalCharged: decimal.RequireFromString("16.5"),
		CreatedAt:    created,
	}
	c := ToAPIConversation(model.Conversation{Transaction: tx}, 0)
	if c.LastMessage != nil || !c.LastActivity.Equal(created) || c.Transaction.TotalCharged != "16.50" || c.Transaction.PlatformFee != "1.50" {
		t.Fatalf("unexpected conversation: %+v", c)
	}

	msg := model.Message{ID: tx.ID, TransactionID: tx.ID, Content: "hi", CreatedAt: created.Add(time.Minute)}
	c = ToAPIConversation(model.Conversation{Transaction: tx, LastMessage: &msg}, 2)
	if c.LastMessage == nil || c.LastMessage.Content != "hi" || !c.LastActivity.Equal(msg.CreatedAt) || c.UnreadCount != 2 {
		t.Fatalf("unexpected conversation: %+v", c)
	}
}

func TestFromAPILocation(t *testing.T) {
	t.Parallel()

	if _, err := FromAPILocation(nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("nil: want ErrValidation, got %v", err)
	}
	if _, err := FromAPILocation(&api.Location{Latitude: 100}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("out of range: want ErrValidation, got %v", err)
	}
	if loc, err := FromAPILocation(&api.Location{Latitude: 40, Longitude: -88}); err != nil || loc.Latitude != 40 {
		t.Fatalf("FromAPILocation = %+v, %v", loc, err)
	}
}
