package checkout

import (
	"regexp"
	"sort"
	"strings"

	"guardslot/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]+$`)
)

// FieldErrors maps a form field to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) orNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateCustomer checks the details form. The error is a FieldErrors.
func ValidateCustomer(c model.Customer) error {
	errs := FieldErrors{}

	if strings.TrimSpace(c.FirstName) == "" {
		errs["first_name"] = "First name is required"
	}
	if strings.TrimSpace(c.LastName) == "" {
		errs["last_name"] = "Last name is required"
	}

	switch {
	case strings.TrimSpace(c.Email) == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(c.Email):
		errs["email"] = "Please enter a valid email"
	}

	switch {
	case strings.TrimSpace(c.Phone) == "":
		errs["phone"] = "Phone number is required"
	case !phonePattern.MatchString(c.Phone):
		errs["phone"] = "Please enter a valid phone number"
	}

	return errs.orNil()
}

// Instrument is the card entered on the payment step. It is handed to the
// payment collaborator and never stored.
type Instrument struct {
	CardNumber string `json:"card_number"`
	ExpiryDate string `json:"expiry_date"`
	CVV        string `json:"cvv"`
	NameOnCard string `json:"name_on_card"`
}

// Validate checks the payment form. The error is a FieldErrors.
func (i Instrument) Validate() error {
	errs := FieldErrors{}

	card := strings.Join(strings.Fields(i.CardNumber), "")
	switch {
	case card == "":
		errs["card_number"] = "Card number is required"
	case len(card) < 16:
		errs["card_number"] = "Please enter a valid card number"
	}

	if i.ExpiryDate == "" {
		errs["expiry_date"] = "Expiry date is required"
	}

	switch {
	case i.CVV == "":
		errs["cvv"] = "CVV is required"
	case len(i.CVV) < 3:
		errs["cvv"] = "Please enter a valid CVV"
	}

	if strings.TrimSpace(i.NameOnCard) == "" {
		errs["name_on_card"] = "Name on card is required"
	}

	return errs.orNil()
}

// Normalized applies the card input masks to raw form values.
func (i Instrument) Normalized() Instrument {
	return Instrument{
		CardNumber: FormatCardNumber(i.CardNumber),
		ExpiryDate: FormatExpiry(i.ExpiryDate),
		CVV:        FormatCVV(i.CVV),
		NameOnCard: strings.TrimSpace(i.NameOnCard),
	}
}

// Last4 returns the trailing card digits for receipts.
func (i Instrument) Last4() string {
	d := digits(i.CardNumber)
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCardNumber keeps up to 16 digits grouped by four.
func FormatCardNumber(value string) string {
	v := digits(value)
	if len(v) < 4 {
		return v
	}
	if len(v) > 16 {
		v = v[:16]
	}

	groups := make([]string, 0, 4)
	for i := 0; i < len(v); i += 4 {
		end := min(i+4, len(v))
		groups = append(groups, v[i:end])
	}
	return strings.Join(groups, " ")
}

// FormatExpiry renders MM/YY once two digits are typed.
func FormatExpiry(value string) string {
	v := digits(value)
	if len(v) < 2 {
		return v
	}
	if len(v) > 4 {
		v = v[:4]
	}
	return v[:2] + "/" + v[2:]
}

// FormatCVV keeps at most four digits.
func FormatCVV(value string) string {
	v := digits(value)
	if len(v) > 4 {
		v = v[:4]
	}
	return v
}
