package extract

import (
	"testing"
)

func TestExtractIntroductionMessage(t *testing.T) {
	f := Extract("Hi, I'm Ahmed from Egypt, need a family visa")

	if f.Name != "Ahmed" {
		t.Errorf("expected name Ahmed, got %q", f.Name)
	}
	if f.Nationality != "Egypt" {
		t.Errorf("expected nationality Egypt, got %q", f.Nationality)
	}
	if f.ServiceIntent != "family_visa" {
		t.Errorf("expected family_visa intent, got %q", f.ServiceIntent)
	}
}

func TestExtractServiceIntent(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"I need a work permit for my brother", "employment_visa"},
		{"how much is a tourist visa for 30 days", "visit_visa"},
		{"I want to renew my residence visa", "visa_renewal"},
		{"visa for my wife and kids", "family_visa"},
		{"I have overstayed my visit visa", "visa_overstay"},
		{"can you help with a court case", "legal_dispute"},
		{"asking about citizenship", "citizenship"},
		{"hello, anyone there?", ""},
	}

	for _, tt := range tests {
		if got := Extract(tt.body).ServiceIntent; got != tt.want {
			t.Errorf("Extract(%q).ServiceIntent = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"Hello, my name is Maria Santos", "Maria Santos"},
		{"i am Rajesh", "Rajesh"},
		{"This is Omar Al Farsi", "Omar Al Farsi"},
		{"I'm interested in a visa", ""}, // lowercase word after the marker
		{"what are your prices", ""},
	}

	for _, tt := range tests {
		if got := Extract(tt.body).Name; got != tt.want {
			t.Errorf("Extract(%q).Name = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestExtractNationality(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"I am an Egyptian national", "Egypt"},
		{"we are coming from the Philippines", "Philippines"},
		{"my wife is Indian", "India"},
		{"I moved here from Kenya last year", "Kenya"},
		{"I am from nowhere in particular", ""},
	}

	for _, tt := range tests {
		if got := Extract(tt.body).Nationality; got != tt.want {
			t.Errorf("Extract(%q).Nationality = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestExtractNationalityEarliestMentionWins(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"I am Egyptian and my wife is Indian", "Egypt"},
		{"my wife is Indian and I am Egyptian", "India"},
	}

	for _, tt := range tests {
		for i := 0; i < 200; i++ {
			if got := Extract(tt.body).Nationality; got != tt.want {
				t.Fatalf("run %d: Extract(%q).Nationality = %q, want %q", i, tt.body, got, tt.want)
			}
		}
	}
}

func TestExtractExpiryDate(t *testing.T) {
	f := Extract("My visa expires on 2025-03-15")
	if f.ExpiryDate != "2025-03-15" {
		t.Errorf("expected expiry 2025-03-15, got %q", f.ExpiryDate)
	}
	if f.ExpiryHint {
		t.Error("exact date must not set the hint flag")
	}
}

func TestExtractExpiryHintNotPromoted(t *testing.T) {
	f := Extract("my visa expires soon, what should I do")
	if f.ExpiryDate != "" {
		t.Errorf("relative expiry produced a date: %q", f.ExpiryDate)
	}
	if !f.ExpiryHint {
		t.Error("expected expiry hint for relative phrasing")
	}
}

func TestExtractDateFormats(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"valid until 2026-01-02", "2026-01-02"},
		{"it expires on 15 March 2025", "2025-03-15"},
		{"expiry is March 15, 2025", "2025-03-15"},
		{"expires 25/03/2026", "2026-03-25"}, // day > 12: unambiguous day-first
		{"expires 2025-02-30", ""},           // impossible calendar date
		{"expires 03/04/2026", ""},           // ambiguous day/month order
	}

	for _, tt := range tests {
		if got := Extract(tt.body).ExpiryDate; got != tt.want {
			t.Errorf("Extract(%q).ExpiryDate = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestExtractEntryDateContext(t *testing.T) {
	f := Extract("we will arrive on 10 June 2026")
	if f.EntryDate != "2026-06-10" {
		t.Errorf("expected entry date 2026-06-10, got %q", f.EntryDate)
	}
	if f.ExpiryDate != "" {
		t.Errorf("arrival date stored as expiry: %q", f.ExpiryDate)
	}
}

func TestExtractDateWithoutContext(t *testing.T) {
	f := Extract("the date is 2026-05-01")
	if f.Date != "2026-05-01" {
		t.Errorf("expected bare date, got %q", f.Date)
	}
	if f.ExpiryDate != "" || f.EntryDate != "" {
		t.Error("context-free date assigned to a specific field")
	}
}

func TestExtractPartySize(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{"we are 4 people", 4},
		{"visa for 2 kids and my wife", 2},
		{"three visitors in total", 3},
		{"just me", 0},
	}

	for _, tt := range tests {
		if got := Extract(tt.body).PartySize; got != tt.want {
			t.Errorf("Extract(%q).PartySize = %d, want %d", tt.body, got, tt.want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	f := Extract("send the quote to maria.santos@example.com please")
	if f.Email != "maria.santos@example.com" {
		t.Errorf("expected email, got %q", f.Email)
	}
}

func TestExtractDiscountRequest(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"is there any discount for families?", true},
		{"can you do a cheaper price", true},
		{"what is the normal price", false},
	}

	for _, tt := range tests {
		if got := Extract(tt.body).DiscountRequested; got != tt.want {
			t.Errorf("Extract(%q).DiscountRequested = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestExtractEmptyBody(t *testing.T) {
	f := Extract("   ")
	if !f.IsEmpty() {
		t.Errorf("expected empty fields, got %+v", f)
	}
}
