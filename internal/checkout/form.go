// Package checkout implements the multi-step checkout form: per-step field
// validation, step-gated navigation, and display helpers for the review
// screen.
package checkout

import (
	"regexp"
	"strings"
)

// Step identifies one page of the checkout wizard.
type Step int

const (
	// StepContact collects name, email, and phone.
	StepContact Step = 1
	// StepShipping collects the delivery address.
	StepShipping Step = 2
	// StepPayment collects the payment method and consents.
	StepPayment Step = 3
)

// FormData is the mutable record of everything the shopper has entered.
type FormData struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string

	Address    string
	Apartment  string
	City       string
	State      string
	PostalCode string
	Country    string

	PaymentMethod   string
	TermsAccepted   bool
	NewsletterOptIn bool
	OrderNotes      string
}

// paymentMethodLabels maps payment method codes to their human-readable
// labels.
var paymentMethodLabels = map[string]string{
	"card":             "Credit/Debit Card",
	"transfer":         "Bank Transfer",
	"cash_on_delivery": "Cash on Delivery",
}

// emailShape is the minimal local@domain check: something before the @,
// something after it containing a dot, no whitespace.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Form is the checkout wizard state machine. UpdateField is the only path
// that mutates form data. SetStep does not enforce validation ordering; the
// host is expected to call it only after ValidateStep passes for the current
// step, and may move backward freely.
type Form struct {
	data FormData
	step Step
}

// NewForm creates an empty form at the contact step.
func NewForm() *Form {
	return &Form{step: StepContact}
}

// Data returns a copy of the current form data.
func (f *Form) Data() FormData { return f.data }

// Step returns the current wizard step.
func (f *Form) Step() Step { return f.step }

// SetStep moves the wizard to the given step. Out-of-range values are
// clamped.
func (f *Form) SetStep(s Step) {
	if s < StepContact {
		s = StepContact
	}
	if s > StepPayment {
		s = StepPayment
	}
	f.step = s
}

// Reset returns the form to its initial empty state at the contact step.
func (f *Form) Reset() {
	f.data = FormData{}
	f.step = StepContact
}

// UpdateField sets a single field by its form name. Unknown fields are
// ignored; boolean fields accept "true"/"1"/"on" as set.
func (f *Form) UpdateField(field, value string) {
	switch field {
	case "firstName":
		f.data.FirstName = value
	case "lastName":
		f.data.LastName = value
	case "email":
		f.data.Email = value
	case "phone":
		f.data.Phone = value
	case "address":
		f.data.Address = value
	case "apartment":
		f.data.Apartment = value
	case "city":
		f.data.City = value
	case "state":
		f.data.State = value
	case "postalCode":
		f.data.PostalCode = value
	case "country":
		f.data.Country = value
	case "paymentMethod":
		f.data.PaymentMethod = value
	case "termsAccepted":
		f.data.TermsAccepted = isTruthy(value)
	case "newsletterOptIn":
		f.data.NewsletterOptIn = isTruthy(value)
	case "orderNotes":
		f.data.OrderNotes = value
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

// ValidateStep computes field-level error messages for exactly the fields
// relevant to the given step, and reports whether the step passes.
func (f *Form) ValidateStep(step Step) (map[string]string, bool) {
	errs := make(map[string]string)

	switch step {
	case StepContact:
		if strings.TrimSpace(f.data.FirstName) == "" {
			errs["firstName"] = "First name is required"
		}
		if strings.TrimSpace(f.data.LastName) == "" {
			errs["lastName"] = "Last name is required"
		}
		if strings.TrimSpace(f.data.Phone) == "" {
			errs["phone"] = "Phone number is required"
		}
		email := strings.TrimSpace(f.data.Email)
		switch {
		case email == "":
			errs["email"] = "Email is required"
		case !emailShape.MatchString(email):
			errs["email"] = "Enter a valid email address"
		}

	case StepShipping:
		if strings.TrimSpace(f.data.Address) == "" {
			errs["address"] = "Address is required"
		}
		if strings.TrimSpace(f.data.City) == "" {
			errs["city"] = "City is required"
		}
		if strings.TrimSpace(f.data.State) == "" {
			errs["state"] = "State is required"
		}
		if strings.TrimSpace(f.data.PostalCode) == "" {
			errs["postalCode"] = "Postal code is required"
		}

	case StepPayment:
		if f.data.PaymentMethod == "" {
			errs["paymentMethod"] = "Select a payment method"
		}
		if !f.data.TermsAccepted {
			errs["termsAccepted"] = "You must accept the terms and conditions"
		}
	}

	return errs, len(errs) == 0
}

// FullName returns the shopper's formatted full name.
func (f *Form) FullName() string {
	return strings.TrimSpace(f.data.FirstName + " " + f.data.LastName)
}

// AddressLine returns the shipping address as a single comma-joined line,
// omitting empty optional parts.
func (f *Form) AddressLine() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{
		f.data.Address,
		f.data.Apartment,
		f.data.City,
		f.data.State,
		f.data.PostalCode,
		f.data.Country,
	} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// PaymentMethodLabel returns the human-readable label for the selected
// payment method, or the raw code when no label is known.
func (f *Form) PaymentMethodLabel() string {
	if label, ok := paymentMethodLabels[f.data.PaymentMethod]; ok {
		return label
	}
	return f.data.PaymentMethod
}
