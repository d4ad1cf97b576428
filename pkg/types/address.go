package types

import (
	"database/sql/driver"
	"encoding/json"
	"regexp"
	"strings"
)

var pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Address is the shipping address snapshot stored with an order. It is
// immutable once the order is created.
type Address struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
	Country string `json:"country,omitempty"`
}

// MissingShippingFields lists the fields a courier needs that are blank or
// malformed. An empty result means the address can be handed to a carrier.
func (a Address) MissingShippingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("name", a.Name)
	check("phone", a.Phone)
	check("street", a.Street)
	check("city", a.City)
	check("state", a.State)
	if !pincodePattern.MatchString(strings.TrimSpace(a.Pincode)) {
		missing = append(missing, "pincode")
	}
	return missing
}

// Value serializes the address to JSON.
func (a Address) Value() (driver.Value, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}
