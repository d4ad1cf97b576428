package carrier

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/shopspring/decimal"
)

var pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)

var trackingTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func unavailable(op string, err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeCarrierUnavailable, err, msg).
		WithDetails(map[string]any{"step": op})
}

func rejected(op string, status int, detail, class string) error {
	return pkgerrors.New(pkgerrors.CodeCarrierRejected, fmt.Sprintf("carrier rejected %s: %s", op, detail)).
		WithDetails(map[string]any{
			"step":           op,
			"status":         status,
			"carrier_detail": detail,
			"class":          class,
		})
}

// classifyStatus maps a non-2xx courier response onto the carrier error codes.
// 5xx and 429 are transient; everything else is a rejection.
func classifyStatus(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	detail := strings.TrimSpace(string(snippet))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeCarrierUnavailable, fmt.Sprintf("carrier %s returned %d", op, resp.StatusCode)).
			WithDetails(map[string]any{
				"step":           op,
				"status":         resp.StatusCode,
				"carrier_detail": detail,
			})
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return rejected(op, resp.StatusCode, detail, "auth")
	default:
		return rejected(op, resp.StatusCode, detail, "rejected")
	}
}

// IsTransient reports whether a carrier error is worth retrying.
func IsTransient(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeCarrierUnavailable)
}

// parseWaybill accepts the shapes the waybill endpoint has been seen to
// return: {"waybill": "..."}, ["..."], or a bare string.
func parseWaybill(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var asMap map[string]any
	if err := json.Unmarshal(body, &asMap); err == nil {
		return strings.TrimSpace(stringValue(asMap["waybill"]))
	}
	var asList []any
	if err := json.Unmarshal(body, &asList); err == nil {
		if len(asList) == 0 {
			return ""
		}
		return strings.TrimSpace(stringValue(asList[0]))
	}
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	return strings.Trim(trimmed, `"`)
}

func parseRemarks(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{strings.TrimSpace(single)}
	}
	return nil
}

func parseTracking(waybill string, body []byte) (*TrackingInfo, error) {
	var resp struct {
		ShipmentData []struct {
			Shipment struct {
				AWB    string `json:"AWB"`
				Status struct {
					Status         string `json:"Status"`
					StatusDateTime string `json:"StatusDateTime"`
					StatusLocation string `json:"StatusLocation"`
					Instructions   string `json:"Instructions"`
				} `json:"Status"`
				Scans []struct {
					ScanDetail struct {
						Scan            string `json:"Scan"`
						ScanDateTime    string `json:"ScanDateTime"`
						ScannedLocation string `json:"ScannedLocation"`
						Instructions    string `json:"Instructions"`
					} `json:"ScanDetail"`
				} `json:"Scans"`
			} `json:"Shipment"`
		} `json:"ShipmentData"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, rejected(OpTrack, http.StatusOK, "unreadable tracking response", "rejected")
	}
	if len(resp.ShipmentData) == 0 {
		return nil, rejected(OpTrack, http.StatusOK, "no tracking data for waybill", "not_found")
	}

	shipment := resp.ShipmentData[0].Shipment
	info := &TrackingInfo{
		Waybill:       firstNonEmpty(shipment.AWB, waybill),
		Status:        shipment.Status.Status,
		StatusAt:      parseTrackingTime(shipment.Status.StatusDateTime),
		StatusDetails: strings.TrimSpace(shipment.Status.Instructions),
		Scans:         make([]TrackingScan, 0, len(shipment.Scans)),
	}
	for _, scan := range shipment.Scans {
		info.Scans = append(info.Scans, TrackingScan{
			Status:       scan.ScanDetail.Scan,
			Location:     scan.ScanDetail.ScannedLocation,
			Instructions: scan.ScanDetail.Instructions,
			ScannedAt:    parseTrackingTime(scan.ScanDetail.ScanDateTime),
		})
	}
	return info, nil
}

func parseTrackingTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range trackingTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func missingPartyFields(p Party) []string {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(p.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(p.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(p.State) == "" {
		missing = append(missing, "state")
	}
	if !isPincode(p.Pincode) {
		missing = append(missing, "pincode")
	}
	return missing
}

func isPincode(value string) bool {
	return pincodePattern.MatchString(strings.TrimSpace(value))
}

// NextBusinessDay returns the next weekday after t, used as the default
// pickup date.
func NextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

func dimensionOrDefault(cm float64) float64 {
	if cm <= 0 {
		return 10
	}
	return cm
}

func decimalFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
