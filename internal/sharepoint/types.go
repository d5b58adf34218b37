// File: internal/sharepoint/types.go
package sharepoint

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// DiscoveredFile is an immutable record of one document found during
// discovery. Extension is always a member of the caller-supplied allow-list.
type DiscoveredFile struct {
	Name               string
	ServerRelativePath string
	Size               int64
	Modified           time.Time
	Extension          string
}

// Diagnostics carries per-run counters and notes. It informs the operator; it
// never alters retry policy.
type Diagnostics struct {
	RequestsIssued   int
	SoftRetries      int
	FatalRetries     int
	ThrottleWaits    int
	InsecureFallback bool
	Notes            []string
}

// DiscoveryResult is the outcome of one ConnectAndDiscover call.
type DiscoveryResult struct {
	Title        string
	ResolvedPath string
	Files        []DiscoveredFile
	Diagnostics  Diagnostics
}

// webInfo is the payload of GET {site}/_api/web.
type webInfo struct {
	Title string
	URL   string
}

// fileEntry mirrors one entry of the Files listing endpoint. Length arrives
// as a JSON string on verbose-OData servers and as a number elsewhere.
type fileEntry struct {
	Name              string      `json:"Name"`
	ServerRelativeURL string      `json:"ServerRelativeUrl"`
	Length            json.Number `json:"Length"`
	TimeLastModified  string      `json:"TimeLastModified"`
}

// folderEntry mirrors one entry of the Folders listing endpoint.
type folderEntry struct {
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
	ItemCount         int    `json:"ItemCount"`
}

// listEnvelope accepts both verbose OData ({"d":{"results":[...]}}) and
// nometadata ({"value":[...]}) response shapes.
type listEnvelope struct {
	D struct {
		Results json.RawMessage `json:"results"`
	} `json:"d"`
	Value json.RawMessage `json:"value"`
}

func (e *listEnvelope) results() json.RawMessage {
	if len(e.D.Results) > 0 {
		return e.D.Results
	}
	return e.Value
}

// decodeList unmarshals a listing body into out (a pointer to a slice),
// unwrapping whichever OData envelope the server used. Bodies that open
// with '[' are a bare array and carry no envelope at all.
func decodeList(body []byte, out interface{}) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := jsonit.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding listing entries: %w", err)
		}
		return nil
	}

	var env listEnvelope
	if err := jsonit.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decoding listing envelope: %w", err)
	}
	raw := env.results()
	if len(raw) == 0 {
		// Envelope present but no entry list: an empty listing.
		return nil
	}
	if err := jsonit.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding listing entries: %w", err)
	}
	return nil
}

// decodeWebInfo parses the /_api/web payload. Legacy on-prem servers ignore
// the JSON Accept header and answer with an Atom XML document, so both shapes
// are accepted.
func decodeWebInfo(body []byte) (*webInfo, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		return decodeWebInfoXML(body)
	}

	var verbose struct {
		D struct {
			Title string `json:"Title"`
			URL   string `json:"Url"`
		} `json:"d"`
		Title string `json:"Title"`
		URL   string `json:"Url"`
	}
	if err := jsonit.Unmarshal(body, &verbose); err != nil {
		return nil, fmt.Errorf("decoding web metadata: %w", err)
	}
	info := &webInfo{Title: verbose.D.Title, URL: verbose.D.URL}
	if info.Title == "" && info.URL == "" {
		info.Title, info.URL = verbose.Title, verbose.URL
	}
	return info, nil
}

// decodeWebInfoXML extracts Title and Url from an Atom entry. Namespace
// prefixes vary between farm versions, so elements are matched on local name.
func decodeWebInfoXML(body []byte) (*webInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("decoding web metadata xml: %w", err)
	}
	info := &webInfo{}
	for _, el := range doc.FindElements("//*") {
		switch el.Tag {
		case "Title":
			if info.Title == "" {
				info.Title = el.Text()
			}
		case "Url":
			if info.URL == "" {
				info.URL = el.Text()
			}
		}
	}
	if info.Title == "" && info.URL == "" {
		return nil, fmt.Errorf("web metadata xml carried no Title or Url")
	}
	return info, nil
}

// parseModified tolerates the repository's timestamp variants.
func parseModified(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
