// Package mapper translates portal-specific webhook payloads into canonical
// lead fields using ordered synonym lists. A Mapper is an immutable value
// built once per portal from the default table merged with the portal's
// override; mapping itself is a pure function over the payload.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalFields lists every canonical key the mapper can produce, in the
// order they are resolved.
var CanonicalFields = []string{
	"name", "email", "phone", "city", "state", "zipcode", "country", "industry",
}

// DefaultSynonyms maps each canonical field to the recognized payload keys,
// scanned in order; the first present, non-empty value wins.
var DefaultSynonyms = map[string][]string{
	"name":     {"name", "full_name", "fullname", "contact_name", "customer_name", "lead_name"},
	"email":    {"email", "email_address", "contact_email", "e_mail", "customer_email"},
	"phone":    {"phone", "phone_number", "telephone", "tel", "mobile", "cell", "contact_phone"},
	"city":     {"city", "town", "locality"},
	"state":    {"state", "province", "region", "state_code"},
	"zipcode":  {"zipcode", "zip", "zip_code", "postal_code", "postalcode", "postcode"},
	"country":  {"country", "country_code"},
	"industry": {"industry", "vertical", "category", "service_type"},
}

// namePartDefaults are consulted when no synonym produced a name. Portals
// may override either list under the "first_name"/"last_name" keys.
var namePartDefaults = map[string][]string{
	"first_name": {"first_name"},
	"last_name":  {"last_name"},
}

// Canonical holds the mapped, normalized lead fields plus the opaque bag of
// payload keys no mapping consumed.
type Canonical struct {
	Name     string
	Email    string
	Phone    string
	City     string
	State    string
	Zipcode  string
	Country  string
	Industry string

	Extras map[string]json.RawMessage
}

// ExtrasJSON serializes the extras bag, or returns nil when it is empty.
func (c *Canonical) ExtrasJSON() (json.RawMessage, error) {
	if len(c.Extras) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(c.Extras)
	if err != nil {
		return nil, fmt.Errorf("marshal extras: %w", err)
	}
	return b, nil
}

// Mapper resolves payload keys to canonical fields.
type Mapper struct {
	synonyms  map[string][]string
	firstKeys []string
	lastKeys  []string
}

// New builds a Mapper from the defaults merged with a portal override.
// Override wins on conflict; canonical keys absent from the override inherit
// the default list. An override entry with an empty list falls through to
// the default rather than disabling the field. The "first_name" and
// "last_name" keys override the name-parts fallback lists.
func New(override map[string][]string) *Mapper {
	merged := make(map[string][]string, len(DefaultSynonyms))
	for field, syns := range DefaultSynonyms {
		merged[field] = syns
	}
	firstKeys := namePartDefaults["first_name"]
	lastKeys := namePartDefaults["last_name"]
	for field, syns := range override {
		if len(syns) == 0 {
			continue
		}
		switch field {
		case "first_name":
			firstKeys = syns
		case "last_name":
			lastKeys = syns
		default:
			merged[field] = syns
		}
	}
	return &Mapper{synonyms: merged, firstKeys: firstKeys, lastKeys: lastKeys}
}

// Map routes a decoded payload through the synonym table. Consumed keys are
// removed from consideration for the extras bag; everything else is kept
// verbatim.
func (m *Mapper) Map(payload map[string]json.RawMessage) *Canonical {
	out := &Canonical{}
	consumed := make(map[string]bool)

	get := func(field string) string {
		for _, key := range m.synonyms[field] {
			raw, ok := payload[key]
			if !ok {
				continue
			}
			v, ok := scalarString(raw)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			consumed[key] = true
			return v
		}
		return ""
	}

	out.Name = get("name")
	out.Email = get("email")
	out.Phone = get("phone")
	out.City = get("city")
	out.State = get("state")
	out.Zipcode = get("zipcode")
	out.Country = get("country")
	out.Industry = get("industry")

	if out.Name == "" {
		first, firstKey, okF := scalarFrom(payload, m.firstKeys)
		last, lastKey, okL := scalarFrom(payload, m.lastKeys)
		if okF || okL {
			out.Name = strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
			if okF {
				consumed[firstKey] = true
			}
			if okL {
				consumed[lastKey] = true
			}
		}
	}

	normalize(out)

	for key, raw := range payload {
		if consumed[key] {
			continue
		}
		if out.Extras == nil {
			out.Extras = make(map[string]json.RawMessage)
		}
		out.Extras[key] = raw
	}
	return out
}

// scalarFrom scans keys in order and returns the first present, non-empty
// scalar value along with the key that supplied it.
func scalarFrom(payload map[string]json.RawMessage, keys []string) (string, string, bool) {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		v, ok := scalarString(raw)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		return v, key, true
	}
	return "", "", false
}

// scalarString extracts a string form from a JSON scalar. Objects, arrays,
// and null are not usable as field values.
func scalarString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// normalize applies the canonical-layer normalization rules in place.
func normalize(c *Canonical) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = NormalizeEmail(c.Email)
	c.Phone = NormalizePhone(c.Phone)
	c.City = strings.TrimSpace(c.City)
	c.State = NormalizeState(c.State)
	c.Zipcode = NormalizeZipcode(c.Zipcode)
	c.Country = strings.TrimSpace(c.Country)
	c.Industry = strings.TrimSpace(strings.ToLower(c.Industry))
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips everything but digits and truncates to 20 characters.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 20 {
		digits = digits[:20]
	}
	return digits
}

// NormalizeState uppercases and keeps the first two characters.
func NormalizeState(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

// NormalizeZipcode trims and keeps the first ten characters.
func NormalizeZipcode(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// DecodePayload decodes an arbitrary JSON object body into the raw key map
// the mapper consumes. Numbers are preserved exactly via RawMessage.
func DecodePayload(body []byte) (map[string]json.RawMessage, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return payload, nil
}
