package carrier

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment modes understood by the courier.
const (
	PaymentModeCOD     = "COD"
	PaymentModePrepaid = "Prepaid"
	PaymentModePickup  = "Pickup"
)

// Party is a postal endpoint on a shipment.
type Party struct {
	Name    string
	Phone   string
	Street  string
	City    string
	State   string
	Pincode string
	Country string
}

// Product is one manifest line.
type Product struct {
	Name  string
	SKU   string
	Units int
	Price decimal.Decimal
}

// Shipment describes one consignment to manifest. For forward shipments the
// consignee is the customer; for reverse pickups it is the pickup point and
// ReturnTo is where the parcel ends up.
type Shipment struct {
	OrderNumber  string
	Waybill      string
	Consignee    Party
	ReturnTo     *Party
	PaymentMode  string
	Products     []Product
	ProductsDesc string
	CODAmount    decimal.Decimal
	TotalAmount  decimal.Decimal
	Quantity     int
	WeightKG     float64
	WidthCM      float64
	HeightCM     float64
	DepthCM      float64
	OrderDate    time.Time
}

// ShipmentResult is the courier's acknowledgement of a manifest.
type ShipmentResult struct {
	Waybill   string
	Status    string
	Remarks   []string
	UploadWBN string
}

// PickupRequest schedules a warehouse pickup.
type PickupRequest struct {
	Location             string
	Date                 time.Time
	Time                 string
	ExpectedPackageCount int
}

// PickupResult is the courier's pickup acknowledgement.
type PickupResult struct {
	PickupID   string
	PickupDate string
}

// TrackingScan is one scan event in a shipment's history.
type TrackingScan struct {
	Status       string    `json:"status"`
	Location     string    `json:"location"`
	Instructions string    `json:"instructions,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// TrackingInfo is the normalized tracking response.
type TrackingInfo struct {
	Waybill       string         `json:"waybill"`
	Status        string         `json:"status"`
	StatusAt      time.Time      `json:"status_at"`
	StatusDetails string         `json:"status_details,omitempty"`
	Scans         []TrackingScan `json:"scans"`
}

// Delivered reports whether the courier marked the shipment delivered.
func (t TrackingInfo) Delivered() bool {
	return equalFoldTrim(t.Status, "Delivered")
}

// Serviceability describes what the courier offers at a pincode.
type Serviceability struct {
	Pincode     string `json:"pincode"`
	Serviceable bool   `json:"serviceable"`
	Prepaid     bool   `json:"prepaid"`
	COD         bool   `json:"cod"`
	Pickup      bool   `json:"pickup"`
	District    string `json:"district,omitempty"`
	StateCode   string `json:"state_code,omitempty"`
}
