package sharepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeListAcceptsAllEnvelopeShapes(t *testing.T) {
	verbose := []byte(`{"d":{"results":[{"Name":"a.pdf","ServerRelativeUrl":"/s/a.pdf","Length":"42","TimeLastModified":"2025-06-01T10:00:00Z"}]}}`)
	nometadata := []byte(`{"value":[{"Name":"a.pdf","ServerRelativeUrl":"/s/a.pdf","Length":42,"TimeLastModified":"2025-06-01T10:00:00Z"}]}`)
	bare := []byte(`[{"Name":"a.pdf","ServerRelativeUrl":"/s/a.pdf","Length":42,"TimeLastModified":"2025-06-01T10:00:00Z"}]`)

	for name, body := range map[string][]byte{"verbose": verbose, "nometadata": nometadata, "bare array": bare} {
		t.Run(name, func(t *testing.T) {
			var entries []fileEntry
			require.NoError(t, decodeList(body, &entries))
			require.Len(t, entries, 1)
			assert.Equal(t, "a.pdf", entries[0].Name)
			size, err := entries[0].Length.Int64()
			require.NoError(t, err)
			assert.Equal(t, int64(42), size)
		})
	}
}

func TestDecodeListEmptyEnvelope(t *testing.T) {
	var entries []fileEntry
	require.NoError(t, decodeList([]byte(`{}`), &entries))
	assert.Empty(t, entries)
}

func TestDecodeWebInfoJSON(t *testing.T) {
	t.Run("verbose", func(t *testing.T) {
		info, err := decodeWebInfo([]byte(`{"d":{"Title":"Engineering","Url":"https://x/sites/eng"}}`))
		require.NoError(t, err)
		assert.Equal(t, "Engineering", info.Title)
	})

	t.Run("nometadata", func(t *testing.T) {
		info, err := decodeWebInfo([]byte(`{"Title":"Engineering","Url":"https://x/sites/eng"}`))
		require.NoError(t, err)
		assert.Equal(t, "Engineering", info.Title)
	})
}

func TestDecodeWebInfoLegacyAtomXML(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="utf-8"?>
<entry xmlns="http://www.w3.org/2005/Atom" xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices" xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata">
  <content type="application/xml">
    <m:properties>
      <d:Title>Engineering</d:Title>
      <d:Url>https://x/sites/eng</d:Url>
    </m:properties>
  </content>
</entry>`)

	info, err := decodeWebInfo(body)
	require.NoError(t, err)
	assert.Equal(t, "Engineering", info.Title)
	assert.Equal(t, "https://x/sites/eng", info.URL)
}

func TestDecodeWebInfoXMLWithoutFields(t *testing.T) {
	_, err := decodeWebInfo([]byte(`<entry><other>x</other></entry>`))
	assert.Error(t, err)
}

func TestParseModified(t *testing.T) {
	assert.Equal(t, 2025, parseModified("2025-06-01T10:00:00Z").Year())
	assert.Equal(t, 2025, parseModified("2025-06-01T10:00:00").Year())
	assert.True(t, parseModified("not a time").IsZero())
}
