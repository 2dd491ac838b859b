package firehose

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
)

type logElement struct {
	Value string `xml:"value,attr"`
}

type responseElement struct {
	Value                    string `xml:"value,attr"`
	RawMode                  string `xml:"rawmode,attr"`
	MaxPayloadSizeToTarget   string `xml:"MaxPayloadSizeToTargetInBytes,attr"`
	MaxPayloadSizeFromTarget string `xml:"MaxPayloadSizeFromTargetInBytes,attr"`
	MemoryName               string `xml:"MemoryName,attr"`
	TargetName               string `xml:"TargetName,attr"`
	Version                  string `xml:"Version,attr"`
}

type document struct {
	XMLName   xml.Name          `xml:"data"`
	Logs      []logElement      `xml:"log"`
	Responses []responseElement `xml:"response"`
}

// frame is every document of one response, flattened.
type frame struct {
	logs     []string
	response *responseElement
}

var (
	xmlProlog   = []byte("<?xml")
	attrPattern = regexp.MustCompile(`<(log|response)\b([^>]*)>`)
	kvPattern   = regexp.MustCompile(`([A-Za-z_]+)="([^"]*)"`)
)

// decodeFrame decodes the documents of a response frame. Programmers emit
// log text that is not always well-formed XML, so a document the decoder
// rejects is scanned for its attributes instead.
func decodeFrame(data []byte) (*frame, error) {
	f := &frame{}
	for _, part := range splitDocuments(data) {
		var doc document
		if err := xml.Unmarshal(part, &doc); err != nil {
			scanDocument(part, f)
			continue
		}
		for _, l := range doc.Logs {
			f.logs = append(f.logs, l.Value)
		}
		for i := range doc.Responses {
			r := doc.Responses[i]
			f.response = &r
		}
	}
	if f.response == nil {
		return nil, fmt.Errorf("firehose: no response element in %q", truncate(data, 128))
	}
	return f, nil
}

func splitDocuments(data []byte) [][]byte {
	var parts [][]byte
	for _, p := range bytes.Split(data, xmlProlog) {
		if len(bytes.TrimSpace(p)) == 0 {
			continue
		}
		if bytes.Contains(data, xmlProlog) {
			p = append(append([]byte{}, xmlProlog...), p...)
		}
		parts = append(parts, p)
	}
	return parts
}

func scanDocument(doc []byte, f *frame) {
	for _, m := range attrPattern.FindAllSubmatch(doc, -1) {
		attrs := map[string]string{}
		for _, kv := range kvPattern.FindAllSubmatch(m[2], -1) {
			attrs[string(kv[1])] = string(kv[2])
		}
		switch string(m[1]) {
		case "log":
			f.logs = append(f.logs, attrs["value"])
		case "response":
			f.response = &responseElement{
				Value:                    attrs["value"],
				RawMode:                  attrs["rawmode"],
				MaxPayloadSizeToTarget:   attrs["MaxPayloadSizeToTargetInBytes"],
				MaxPayloadSizeFromTarget: attrs["MaxPayloadSizeFromTargetInBytes"],
				MemoryName:               attrs["MemoryName"],
				TargetName:               attrs["TargetName"],
				Version:                  attrs["Version"],
			}
		}
	}
}

func (f *frame) base() Response {
	r := Response{Value: f.response.Value, Logs: f.logs}
	if f.response.RawMode != "" {
		raw := f.response.RawMode == "true"
		r.RawMode = &raw
	}
	return r
}

func optionalInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// ParseResponse decodes a response frame.
func ParseResponse(data []byte) (*Response, error) {
	f, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	r := f.base()
	return &r, nil
}

// ParseConfigureResponse decodes the response frame of a <configure> command.
func ParseConfigureResponse(data []byte) (*ConfigureResponse, error) {
	f, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	return &ConfigureResponse{
		Response:                 f.base(),
		MaxPayloadSizeToTarget:   optionalInt(f.response.MaxPayloadSizeToTarget),
		MaxPayloadSizeFromTarget: optionalInt(f.response.MaxPayloadSizeFromTarget),
		MemoryName:               f.response.MemoryName,
		TargetName:               f.response.TargetName,
		Version:                  f.response.Version,
	}, nil
}

// splitResponse returns the bytes up to and including the document that
// carries a <response> element, and whatever follows it.
func splitResponse(buf []byte) (head, rest []byte, ok bool) {
	idx := bytes.Index(buf, []byte(responseMarker))
	if idx < 0 {
		return nil, buf, false
	}
	end := bytes.Index(buf[idx:], []byte(documentEnd))
	if end < 0 {
		return nil, buf, false
	}
	cut := idx + end + len(documentEnd)
	return buf[:cut], buf[cut:], true
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
