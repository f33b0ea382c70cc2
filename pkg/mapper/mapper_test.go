package mapper_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/mapper"
)

func payload(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	p, err := mapper.DecodePayload([]byte(body))
	require.NoError(t, err)
	return p
}

func TestMap_DefaultSynonyms(t *testing.T) {
	m := mapper.New(nil)

	c := m.Map(payload(t, `{
		"full_name": "Jane Doe",
		"email_address": "Jane@Example.COM",
		"phone_number": "(512) 555-0134",
		"town": "Austin",
		"province": "Texas",
		"postal_code": "78701-1234",
		"vertical": "Roofing"
	}`))

	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, "jane@example.com", c.Email)
	assert.Equal(t, "5125550134", c.Phone)
	assert.Equal(t, "Austin", c.City)
	assert.Equal(t, "TE", c.State)
	assert.Equal(t, "78701-1234", c.Zipcode)
	assert.Equal(t, "roofing", c.Industry)
	assert.Empty(t, c.Extras)
}

func TestMap_FirstPresentSynonymWins(t *testing.T) {
	m := mapper.New(nil)

	// "email" precedes "email_address" in the default list.
	c := m.Map(payload(t, `{"name":"x","email":"a@b.co","email_address":"z@y.co"}`))
	assert.Equal(t, "a@b.co", c.Email)

	// An empty value falls through to the next synonym.
	c = m.Map(payload(t, `{"name":"x","email":"  ","email_address":"z@y.co"}`))
	assert.Equal(t, "z@y.co", c.Email)
}

func TestMap_NamePartsFallback(t *testing.T) {
	m := mapper.New(nil)

	c := m.Map(payload(t, `{"first_name":"Jane","last_name":"Doe"}`))
	assert.Equal(t, "Jane Doe", c.Name)

	c = m.Map(payload(t, `{"first_name":"Jane"}`))
	assert.Equal(t, "Jane", c.Name)

	// A direct name wins over parts; parts then land in extras.
	c = m.Map(payload(t, `{"name":"J. Doe","first_name":"Jane","last_name":"Doe"}`))
	assert.Equal(t, "J. Doe", c.Name)
	assert.Contains(t, c.Extras, "first_name")
	assert.Contains(t, c.Extras, "last_name")
}

func TestMap_NamePartsOverride(t *testing.T) {
	m := mapper.New(map[string][]string{
		"first_name": {"fname", "given_name"},
		"last_name":  {"lname"},
	})

	c := m.Map(payload(t, `{"fname":"Jane","lname":"Doe"}`))
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Empty(t, c.Extras)

	// The second synonym is consulted when the first is absent.
	c = m.Map(payload(t, `{"given_name":"Jane","lname":"Doe"}`))
	assert.Equal(t, "Jane Doe", c.Name)

	// Overridden part keys displace the defaults.
	c = m.Map(payload(t, `{"first_name":"Jane","lname":"Doe"}`))
	assert.Equal(t, "Doe", c.Name)
	assert.Contains(t, c.Extras, "first_name")
}

func TestMap_PortalOverride(t *testing.T) {
	m := mapper.New(map[string][]string{
		"email": {"contact"},
		"phone": {}, // empty override keeps the defaults
	})

	c := m.Map(payload(t, `{"name":"x","contact":"a@b.co","mobile":"15550001111"}`))
	assert.Equal(t, "a@b.co", c.Email)
	assert.Equal(t, "15550001111", c.Phone)

	// The overridden field no longer honors default synonyms.
	c = m.Map(payload(t, `{"name":"x","email_address":"z@y.co"}`))
	assert.Empty(t, c.Email)
	assert.Contains(t, c.Extras, "email_address")
}

func TestMap_ExtrasBag(t *testing.T) {
	m := mapper.New(nil)

	c := m.Map(payload(t, `{"name":"x","utm_source":"google","budget":5000,"nested":{"a":1}}`))
	assert.Len(t, c.Extras, 3)
	assert.JSONEq(t, `"google"`, string(c.Extras["utm_source"]))
	assert.JSONEq(t, `5000`, string(c.Extras["budget"]))
	assert.JSONEq(t, `{"a":1}`, string(c.Extras["nested"]))

	raw, err := c.ExtrasJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "utm_source")
}

func TestMap_NumericScalars(t *testing.T) {
	m := mapper.New(nil)

	c := m.Map(payload(t, `{"name":"x","zip":78701,"phone":5125550134}`))
	assert.Equal(t, "78701", c.Zipcode)
	assert.Equal(t, "5125550134", c.Phone)
}

func TestMap_NonScalarValuesNotConsumed(t *testing.T) {
	m := mapper.New(nil)

	c := m.Map(payload(t, `{"name":["array"],"email":null,"full_name":"Jane"}`))
	assert.Equal(t, "Jane", c.Name)
	assert.Empty(t, c.Email)
	assert.Contains(t, c.Extras, "name")
	assert.Contains(t, c.Extras, "email")
}

func TestDecodePayload_RejectsNonObject(t *testing.T) {
	_, err := mapper.DecodePayload([]byte(`[1,2,3]`))
	assert.Error(t, err)
	_, err = mapper.DecodePayload([]byte(`"str"`))
	assert.Error(t, err)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "a@b.co", mapper.NormalizeEmail("  A@B.Co "))
	assert.Equal(t, "15125550134", mapper.NormalizePhone("+1 (512) 555-0134"))
	assert.Equal(t, "12345678901234567890", mapper.NormalizePhone("123456789012345678901234"))
	assert.Equal(t, "TX", mapper.NormalizeState(" tx "))
	assert.Equal(t, "TE", mapper.NormalizeState("texas"))
	assert.Equal(t, "78701-1234", mapper.NormalizeZipcode(" 78701-1234 "))
	assert.Equal(t, "78701-1234", mapper.NormalizeZipcode("78701-12345"))
}
